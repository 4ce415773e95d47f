package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ternarybob/quaero/internal/model"
)

var statusIncludeStats bool

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Fetch a job's current status from a running server",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusIncludeStats, "stats", false, "Include per-transition timing stats")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	url := fmt.Sprintf("http://%s:%d/api/jobs/%s", config.Server.Host, config.Server.Port, jobID)
	if statusIncludeStats {
		url += "?stats=true"
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	var status model.JobStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job:       %s\n", status.JobID)
	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Progress:  %d/%d\n", status.Progress.Completed, status.Progress.Total)
	if status.Cause != "" {
		fmt.Printf("Cause:     %s\n", status.Cause)
	}
	for name, seconds := range status.Stats {
		fmt.Printf("  %s: %.3fs\n", name, seconds)
	}
	return nil
}
