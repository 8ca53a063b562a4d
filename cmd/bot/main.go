package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"weekbot/internal/app"
)

func main() {
	root := &cobra.Command{
		Use:           "weekbot",
		Short:         "weekbot sends weekly Telegram messages from a schedule file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts := addFileFlags(root)
	root.RunE = func(cmd *cobra.Command, args []string) error { return run(*opts) }

	root.AddCommand(runCmd(), checkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func addFileFlags(cmd *cobra.Command) *app.Options {
	opts := &app.Options{}
	cmd.Flags().StringVar(&opts.SchedulePath, "schedule", "", "schedule file (default: settings schedule_file, ./config.txt)")
	cmd.Flags().StringVar(&opts.SettingsPath, "settings", "", "optional JSON or YAML settings file")
	cmd.Flags().StringVar(&opts.EnvPath, "env", ".env", "dotenv file loaded before settings")
	return opts
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send the startup message once, then dispatch weekly entries until interrupted",
		Args:  cobra.NoArgs,
	}
	opts := addFileFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return run(*opts) }
	return cmd
}

func run(opts app.Options) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
