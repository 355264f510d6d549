package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rendis/proact/internal/engine"
	"github.com/rendis/proact/pkg/schema"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	statusColors = map[schema.ComponentStatus]lipgloss.Color{
		schema.ComponentStatusComplete:      lipgloss.Color("#4CAF50"),
		schema.ComponentStatusInProgress:    lipgloss.Color("#FFC107"),
		schema.ComponentStatusNeedsRevision: lipgloss.Color("#FF6B6B"),
		schema.ComponentStatusNotStarted:    lipgloss.Color("#888888"),
	}
)

func newStatusCommand(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status <cycle-id>",
		Short: "Show a cycle's stages, progress and diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := app.newService(st, engine.Config{})
			if err != nil {
				return err
			}
			view, err := svc.GetCycle(ctx, args[0])
			if err != nil {
				if schema.HasCode(err, schema.ErrCodeNotFound) {
					fmt.Fprintf(app.Err, "cycle %s not found\n", args[0])
					return &ExitError{Code: 2}
				}
				return err
			}
			diagram, err := svc.Diagram(ctx, view.ID, engine.DiagramFormat(format))
			if err != nil {
				return err
			}
			if !engine.DiagramFormat(format).IsText() {
				_, err = app.Out.Write(diagram)
				return err
			}
			fmt.Fprintln(app.Out, renderStatus(view))
			fmt.Fprintln(app.Out, string(diagram))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(engine.DiagramASCII), "diagram format: ascii, mermaid, svg or png (image formats write raw bytes)")
	return cmd
}

// renderStatus draws the cycle header and stage list in a bordered box.
func renderStatus(view *engine.CycleView) string {
	var b strings.Builder

	title := "Cycle " + view.ID
	if view.Branch.Label != "" {
		title += " · " + view.Branch.Label
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s   %s %s   %s %d%%\n",
		labelStyle.Render("status"), view.Status,
		labelStyle.Render("session"), view.SessionID,
		labelStyle.Render("progress"), view.Progress.PercentComplete,
	)
	if view.ParentCycleID != "" {
		fmt.Fprintf(&b, "%s %s at %s\n", labelStyle.Render("branched from"), view.ParentCycleID, view.BranchPoint)
	}
	b.WriteString(progressBar(view.Progress.PercentComplete, 30))
	b.WriteString("\n\n")

	for _, comp := range view.Components {
		marker := "  "
		if comp.Type == view.CurrentStep {
			marker = "> "
		}
		status := lipgloss.NewStyle().Foreground(statusColors[comp.Status]).Render(string(comp.Status))
		fmt.Fprintf(&b, "%s%-20s %s", marker, comp.Type.Label(), status)
		if comp.RevisionReason != "" {
			fmt.Fprintf(&b, " %s", labelStyle.Render("("+comp.RevisionReason+")"))
		}
		b.WriteString("\n")
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
