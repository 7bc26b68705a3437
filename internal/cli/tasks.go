package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/retry"
)

// taskInfo — описание задачи для вывода.
type taskInfo struct {
	Name    string `json:"name"`
	Queue   string `json:"queue,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	// MaxRetries — лимит повторов задачи; пусто, если не задан.
	MaxRetries string `json:"max_retries,omitempty"`
}

// NewTasksCmd создаёт команду списка известных задач.
func NewTasksCmd(sessionFn SessionFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List known tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			return withSession(cmd.Context(), sessionFn, func(s *Session) error {
				names := s.Registry.Names()
				infos := make([]taskInfo, 0, len(names))

				for _, name := range names {
					t, err := s.Registry.Lookup(name)
					if err != nil {
						return err
					}
					opts := t.Options()

					info := taskInfo{Name: name, Queue: opts.Queue}
					if d := opts.TimeoutValue(); d > 0 {
						info.Timeout = d.String()
					}
					if opts.MaxRetries != nil {
						if *opts.MaxRetries == retry.Unlimited {
							info.MaxRetries = "unlimited"
						} else {
							info.MaxRetries = strconv.Itoa(*opts.MaxRetries)
						}
					}
					infos = append(infos, info)
				}

				out.Tasks(infos)
				return nil
			})
		},
	}
}
