package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iago/obra-back/internal/weekkey"
)

var carryForwardCmd = &cobra.Command{
	Use:   "carry-forward [site_id]",
	Short: "Advance a site to its next week, carrying pending tasks",
	Long: `Advance one site to its next week. Pending tasks of the current week are
cloned into the new week with their pending-week counter incremented.

Pass --expect with the week you believe the site is on; the server refuses
with a conflict if another carry-forward got there first. Without --expect
the site is read first and its current week is pinned, so rerunning the
command never advances the site past the week it showed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expected, _ := cmd.Flags().GetString("expect")
		if expected != "" && !weekkey.Valid(expected) {
			return fmt.Errorf("--expect must look like YYYY-Www, got %q", expected)
		}

		client := newClientFromConfig()
		if expected == "" {
			site, err := client.GetSite(args[0])
			if err != nil {
				return err
			}
			if site.CurrentWeekKey == "" {
				return fmt.Errorf("site %s has no current week", site.ID)
			}
			expected = string(site.CurrentWeekKey)
		}

		result, err := client.CarryForward(args[0], weekkey.Key(expected))
		if err != nil {
			return err
		}
		cmd.Printf("Site %s moved %s -> %s, carried %d pending task(s)\n",
			result.SiteID, result.From, result.To, result.CarriedCount)
		return nil
	},
}

func init() {
	carryForwardCmd.Flags().String("expect", "", "week key the site must currently be on")
	rootCmd.AddCommand(carryForwardCmd)
}
