package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List all jobs on the server",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	jobs, err := api.Jobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%-38s %-12s %s\n", "ID", "STATUS", "MESSAGE")
	fmt.Println("--------------------------------------------------------------------------")
	for _, id := range ids {
		job := jobs[id]
		fmt.Printf("%-38s %-12s %s\n", id, renderStatus(job.Status), truncate(job.Message, 60))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	job, err := api.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Status: %s\n", renderStatus(job.Status))
	if job.Message != "" {
		fmt.Printf("  Message: %s\n", job.Message)
	}
	if job.OutputPath != "" {
		fmt.Printf("  Output: %s\n", job.OutputPath)
	}
	return nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
