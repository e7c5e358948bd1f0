package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/weekkey"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and inspect weekly report snapshots",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the snapshot for the current week, replacing any earlier one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := newClientFromConfig().SaveSnapshot()
		if err != nil {
			return err
		}
		printSnapshot(cmd, snapshot)
		return nil
	},
}

var snapshotGetCmd = &cobra.Command{
	Use:   "get [week_key]",
	Short: "Show a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !weekkey.Valid(args[0]) {
			return fmt.Errorf("week key must look like YYYY-Www, got %q", args[0])
		}
		snapshot, err := newClientFromConfig().GetSnapshot(weekkey.Key(args[0]))
		if err != nil {
			return err
		}
		printSnapshot(cmd, snapshot)
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshots, err := newClientFromConfig().ListSnapshots()
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			cmd.Println("No snapshots saved.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WEEK\tRANGE\tTASKS\tDONE\tPENDING\tOVERDUE")
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s\t%s..%s\t%d\t%d\t%d\t%d\n",
				s.WeekKey, s.Range.From, s.Range.To,
				s.Summary.TotalTasks, s.Summary.Done, s.Summary.Pending, s.Summary.Overdue)
		}
		return w.Flush()
	},
}

func printSnapshot(cmd *cobra.Command, snapshot *domain.ReportSnapshot) {
	cmd.Printf("Week %s (%s to %s)\n", snapshot.WeekKey, snapshot.Range.From, snapshot.Range.To)
	summary := snapshot.Summary
	cmd.Printf("Sites: %d  Tasks: %d  Done: %d  Pending: %d  Cancelled: %d  Overdue: %d\n",
		summary.TotalSites, summary.TotalTasks, summary.Done, summary.Pending, summary.Cancelled, summary.Overdue)
	if len(snapshot.EngineerBreakdown) == 0 {
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ENGINEER\tPENDING\tDONE\tCANCELLED")
	for _, row := range snapshot.EngineerBreakdown {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", row.Name, row.Pending, row.Done, row.Cancelled)
	}
	_ = w.Flush()
}

func init() {
	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotGetCmd, snapshotListCmd)
	rootCmd.AddCommand(snapshotCmd)
}
