package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/clearance"
	"github.com/teslashibe/go-grok-pilot/pkg/pilot"
)

var preflightJSON bool

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check battery, altitude and surroundings, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		app, err := pilot.New(s, log.L())
		if err != nil {
			return err
		}
		if err := app.Init(cmd.Context()); err != nil {
			return err
		}
		defer app.Shutdown(context.Background())

		rep := app.Preflight(cmd.Context())
		out := cmd.OutOrStdout()
		if preflightJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		printReport(cmd, rep)
		if !rep.AllPassed {
			return fmt.Errorf("preflight failed: %d critical", len(rep.CriticalFailures))
		}
		return nil
	},
}

func init() {
	preflightCmd.Flags().BoolVar(&preflightJSON, "json", false, "print the report as JSON")
}

func printReport(cmd *cobra.Command, rep *clearance.PreflightReport) {
	out := cmd.OutOrStdout()
	for _, c := range rep.Checks {
		fmt.Fprintf(out, "%-10s %-8s %s\n", c.Name, c.Status, c.Message)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, f := range rep.CriticalFailures {
		fmt.Fprintf(out, "critical: %s\n", f)
	}
	fmt.Fprintf(out, "all passed: %v, flip ready: %v\n", rep.AllPassed, rep.FlipReady)
}
