package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pgassner/colmapd/internal/models"
	"github.com/spf13/cobra"
)

var (
	submitMode           string
	submitGPU            string
	submitRenderPipeline string
	submitScale          string
	submitConfigFile     string
	submitWatch          bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <input-path>",
	Short: "Submit a processing job",
	Long: `Submit a new reconstruction job for a file or directory that is
visible to the server.

Examples:
  colmapctl submit /data/scans/kitchen
  colmapctl submit /data/scans/kitchen --gpu true --render-pipeline fast
  colmapctl submit /data/scans/kitchen --config tuning.json --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitMode, "mode", models.ModeBatch, "run mode (batch or daemon)")
	submitCmd.Flags().StringVar(&submitGPU, "gpu", "auto", "GPU selection (true, false or auto)")
	submitCmd.Flags().StringVar(&submitRenderPipeline, "render-pipeline", "default", "render pipeline profile (fast, high_quality or default)")
	submitCmd.Flags().StringVar(&submitScale, "scale", "default", "scale profile (large or default)")
	submitCmd.Flags().StringVar(&submitConfigFile, "config", "", "JSON file with pipeline configuration")
	submitCmd.Flags().BoolVar(&submitWatch, "watch", false, "follow the job until it finishes")

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	params := models.SubmitParams{
		InputPath:      args[0],
		Mode:           submitMode,
		GPU:            submitGPU,
		RenderPipeline: submitRenderPipeline,
		Scale:          submitScale,
	}

	if submitConfigFile != "" {
		data, err := os.ReadFile(submitConfigFile)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, &params.Config); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}

	job, err := api.Submit(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Status: %s\n", renderStatus(job.Status))
	if job.Message != "" {
		fmt.Printf("  Message: %s\n", job.Message)
	}

	if submitWatch {
		return watchJob(cmd.Context(), job.JobID)
	}
	return nil
}
