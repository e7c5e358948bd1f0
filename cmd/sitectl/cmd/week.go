package cmd

import (
	"github.com/spf13/cobra"
)

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Show the current and next week key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		week, err := newClientFromConfig().CurrentWeek()
		if err != nil {
			return err
		}
		cmd.Printf("Current:  %s (%s to %s)\n", week.WeekKey, week.Range.From, week.Range.To)
		cmd.Printf("Next:     %s\n", week.NextWeekKey)
		cmd.Printf("Wrap:     %s\n", week.WrapMode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(weekCmd)
}
