package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weekbot/internal/app"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the schedule file and print upcoming runs without sending",
		Args:  cobra.NoArgs,
	}
	opts := addFileFlags(cmd)
	next := cmd.Flags().Int("next", 1, "number of upcoming runs to print per entry")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if *next < 1 {
			return fmt.Errorf("--next must be >= 1")
		}
		res, err := app.Check(*opts, time.Now(), *next)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		sc := res.Schedule
		fmt.Fprintf(out, "schedule:  %s\n", res.Path)
		fmt.Fprintf(out, "recipient: %d\n", sc.RecipientID)
		switch {
		case sc.StartupMessage == nil:
			fmt.Fprintln(out, "startup:   none")
		default:
			fmt.Fprintf(out, "startup:   %d chars (sent once)\n", len([]rune(*sc.StartupMessage)))
		}
		fmt.Fprintf(out, "entries:   %d\n", len(res.Plan))
		for _, p := range res.Plan {
			fmt.Fprintf(out, "\n  %s  line %d  cron %q\n", p.Entry.Label(), p.Entry.Line, p.Spec)
			for _, t := range p.Next {
				fmt.Fprintf(out, "    %s\n", t.Format("Mon 2006-01-02 15:04 MST"))
			}
		}
		return nil
	}
	return cmd
}
