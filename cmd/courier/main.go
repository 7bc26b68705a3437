// Courier CLI — отправка вызовов задач и чтение итогов.
//
// Использование:
//
//	courier [--broker-url URL] [--result-backend URL] [--json] <command> [flags]
//
// Команды:
//
//	send      Отправить вызов задачи
//	result    Показать итог вызова
//	tasks     Список встроенных задач
//	schedule  Проверить файл расписания beat
//
// Значения по умолчанию берутся из переменных окружения COURIER_*.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/bootstrap"
	"github.com/shaiso/Courier/internal/builtin"
	"github.com/shaiso/Courier/internal/cli"
	"github.com/shaiso/Courier/internal/config"
	"github.com/shaiso/Courier/internal/task"
	"github.com/shaiso/Courier/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var brokerURL string
	var backendURL string
	var jsonOutput bool
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Courier CLI — distributed task queue tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&brokerURL, "broker-url", "", "Broker URL (default: COURIER_BROKER_URL)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "result-backend", "", "Result backend URL (default: COURIER_RESULT_BACKEND)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")

	sessionFn := func(ctx context.Context) (*cli.Session, error) {
		level := slog.LevelError
		if verbose {
			level = slog.LevelDebug
		}
		logger := telemetry.NewLogger(os.Stderr, "text", level)

		cfg, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		if brokerURL != "" {
			cfg.BrokerURL = brokerURL
		}
		if backendURL != "" {
			cfg.ResultBackendURL = backendURL
		}

		return openSession(ctx, cfg, logger)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewSendCmd(sessionFn, outputFn),
		cli.NewResultCmd(sessionFn, outputFn),
		cli.NewTasksCmd(sessionFn, outputFn),
		cli.NewScheduleCmd(outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger) (*cli.Session, error) {
	res, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	builder := task.NewBuilder(logger)
	if err := builtin.Register(builder, nil); err != nil {
		res.Close()
		return nil, err
	}
	registry := builder.Build()

	a, err := res.NewApp(cfg, registry)
	if err != nil {
		res.Close()
		return nil, err
	}

	return &cli.Session{App: a, Registry: registry, Close: res.Close}, nil
}
