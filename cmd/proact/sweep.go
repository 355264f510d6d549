package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/internal/scheduler"
)

func newSweepCommand(app *App) *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Archive completed cycles older than the retention period, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retention <= 0 {
				retention = app.Config.Sweep.Retention
			}
			st, err := app.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := app.newService(st, engine.Config{})
			if err != nil {
				return err
			}
			sched, err := scheduler.NewScheduler(svc, scheduler.Config{
				Schedule:  app.Config.Sweep.Schedule,
				Retention: retention,
				Logger:    app.Logger,
			})
			if err != nil {
				return err
			}
			n, err := sched.RunOnce(cmd.Context())
			fmt.Fprintf(app.Out, "archived %d cycles\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override sweep.retention (e.g. 720h)")
	return cmd
}
