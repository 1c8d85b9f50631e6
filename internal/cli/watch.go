package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/pgassner/colmapd/internal/client"
	"github.com/pgassner/colmapd/internal/models"
	"github.com/spf13/cobra"
)

// Theme holds the color scheme for status output.
type Theme struct {
	Active  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
}

var defaultTheme = Theme{
	Active:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
}

func (t Theme) activeStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Active)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

// renderStatus colors a status string for terminal output.
func renderStatus(status string) string {
	switch models.JobStatus(status) {
	case models.JobStatusCompleted:
		return defaultTheme.successStyle().Render(status)
	case models.JobStatusFailed:
		return defaultTheme.errorStyle().Render(status)
	default:
		return defaultTheme.activeStyle().Render(status)
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job until it finishes",
	Long: `Follow a job's status stream until it reaches a terminal state.
Exits non-zero if the job fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJob(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchJob follows the websocket stream, printing each status change.
func watchJob(ctx context.Context, jobID string) error {
	var last client.Job
	seen := ""

	err := api.Watch(ctx, jobID, func(job client.Job) {
		last = job
		if job.Status == seen {
			return
		}
		seen = job.Status
		fmt.Printf("%s %s\n", renderStatus(job.Status), job.Message)
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}

	switch models.JobStatus(last.Status) {
	case models.JobStatusCompleted:
		if last.OutputPath != "" {
			fmt.Printf("Output: %s\n", last.OutputPath)
		}
		return nil
	case models.JobStatusFailed:
		return fmt.Errorf("job %s failed", jobID)
	default:
		return fmt.Errorf("watch stream ended before job %s finished", jobID)
	}
}
