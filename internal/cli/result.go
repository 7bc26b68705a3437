package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/backend"
)

// NewResultCmd создаёт команду чтения итога.
func NewResultCmd(sessionFn SessionFunc, outputFn func() *Output) *cobra.Command {
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "result ID",
		Short: "Show the outcome of a task invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			return withSession(cmd.Context(), sessionFn, func(s *Session) error {
				var (
					o   *backend.Outcome
					err error
				)
				if wait {
					o, err = s.App.Wait(cmd.Context(), args[0], interval)
				} else {
					o, err = s.App.Result(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				out.Outcome(o)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the outcome is terminal")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Polling interval")

	return cmd
}
