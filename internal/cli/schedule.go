package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/scheduler"
)

// NewScheduleCmd создаёт команду проверки файла расписания beat.
func NewScheduleCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule FILE",
		Short: "Validate a beat schedule file and show next due times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			entries, err := scheduler.LoadEntries(args[0])
			if err != nil {
				return err
			}

			now := time.Now()
			rows := make([]scheduleRow, 0, len(entries))

			for i := range entries {
				e := &entries[i]
				next, err := scheduler.CalculateNextDue(e, now)
				if err != nil {
					return err
				}
				rows = append(rows, scheduleRow{Entry: *e, NextDue: next})
			}

			out.Schedule(rows)
			return nil
		},
	}
}
