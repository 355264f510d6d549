package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(app *App) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := st.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "schema version %d\n", v)

			if vacuum {
				if err := st.Vacuum(ctx); err != nil {
					return fmt.Errorf("vacuum: %w", err)
				}
				fmt.Fprintln(app.Out, "vacuumed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "compact the database file after migrating")
	return cmd
}
