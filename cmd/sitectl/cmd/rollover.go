package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const rolloverPollInterval = 500 * time.Millisecond

var rolloverCmd = &cobra.Command{
	Use:   "rollover [site_id...]",
	Short: "Queue a carry-forward job for each site",
	Long: `Queue one carry-forward job per site, or for every active site when no
ids are given. Each job is pinned to the week the site is on when queued, so
retried jobs never advance a site twice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client := newClientFromConfig()
		jobs, err := client.RequestRollover(args)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			cmd.Println("No active sites to roll over.")
			return nil
		}

		if wait {
			deadline := time.Now().Add(timeout)
			for i := range jobs {
				for !jobs[i].Finished() {
					if time.Now().After(deadline) {
						return fmt.Errorf("timed out waiting for job %s", jobs[i].JobID)
					}
					time.Sleep(rolloverPollInterval)
					job, err := client.GetJob(jobs[i].JobID)
					if err != nil {
						return err
					}
					jobs[i] = *job
				}
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tSITE\tFROM\tSTATUS\tDETAIL")
		for _, job := range jobs {
			detail := ""
			switch {
			case job.Result != nil:
				detail = fmt.Sprintf("-> %s, carried %d", job.Result.To, job.Result.CarriedCount)
			case job.Error != nil:
				detail = job.Error.Message
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.JobID, job.SiteID, job.ExpectedWeekKey, job.Status, detail)
		}
		return w.Flush()
	},
}

func init() {
	rolloverCmd.Flags().Bool("wait", false, "poll until every job finishes")
	rolloverCmd.Flags().Duration("timeout", 2*time.Minute, "how long --wait polls")
	rootCmd.AddCommand(rolloverCmd)
}
