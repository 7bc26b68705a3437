package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/task"
)

// NewSendCmd создаёт команду отправки вызова.
func NewSendCmd(sessionFn SessionFunc, outputFn func() *Output) *cobra.Command {
	var (
		kwargs     []string
		queue      string
		countdown  time.Duration
		eta        string
		expiresIn  time.Duration
		maxRetries int
		timeout    time.Duration
		wait       bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send TASK [ARG...]",
		Short: "Send a task invocation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			kw, err := parseKwargs(kwargs)
			if err != nil {
				return err
			}

			var opts []task.Option
			if queue != "" {
				opts = append(opts, task.WithQueue(queue))
			}
			if cmd.Flags().Changed("max-retries") {
				opts = append(opts, task.WithMaxRetries(maxRetries))
			}
			if cmd.Flags().Changed("timeout") {
				opts = append(opts, task.WithTimeout(timeout))
			}

			sig, err := task.NewSignature(args[0], parseArgs(args[1:]), kw, opts...)
			if err != nil {
				return err
			}
			sig.Countdown = countdown
			sig.ExpiresIn = expiresIn
			if eta != "" {
				t, err := time.Parse(time.RFC3339, eta)
				if err != nil {
					return fmt.Errorf("invalid --eta %q: %w", eta, err)
				}
				sig.ETA = &t
			}

			return withSession(cmd.Context(), sessionFn, func(s *Session) error {
				id, err := s.App.SendSignature(cmd.Context(), sig)
				if err != nil {
					return err
				}
				out.Success(fmt.Sprintf("Task sent: %s", id))

				if !wait {
					out.Sent(id, sig.Name)
					return nil
				}

				o, err := s.App.Wait(cmd.Context(), id, interval)
				if err != nil {
					return err
				}
				out.Outcome(o)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&kwargs, "kwarg", nil, "Keyword argument as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&queue, "queue", "", "Target queue")
	cmd.Flags().DurationVar(&countdown, "countdown", 0, "Delay execution by duration")
	cmd.Flags().StringVar(&eta, "eta", "", "Do not execute before this time (RFC 3339)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Discard if not executed within duration")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Override max retries")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Override execution timeout")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the result")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Result polling interval")

	return cmd
}
