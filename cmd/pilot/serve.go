package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-grok-pilot/internal/log"
	"github.com/teslashibe/go-grok-pilot/pkg/pilot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the vehicle and serve the control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		app, err := pilot.New(s, log.L())
		if err != nil {
			return err
		}
		if err := app.Init(ctx); err != nil {
			return err
		}
		defer app.Shutdown(context.Background())

		return app.Run(ctx)
	},
}
