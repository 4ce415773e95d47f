package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/quaero/internal/model"
)

var (
	submitQueryFile     string
	submitDialect       string
	submitStart         string
	submitEnd           string
	submitBatchDays     int
	submitColumns       []string
	submitDependentRefs []string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a metrics calculation job to a running server",
	Long:  `Reads a query template and window bounds and POSTs a submit-job request to a running Metrics Calculation Service instance.`,
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitQueryFile, "query-file", "", "Path to the query template file (required)")
	submitCmd.Flags().StringVar(&submitDialect, "dialect", "duckdb", "Source SQL dialect the query template is written in")
	submitCmd.Flags().StringVar(&submitStart, "start", "", "Window start date, YYYY-MM-DD (required)")
	submitCmd.Flags().StringVar(&submitEnd, "end", "", "Window end date, YYYY-MM-DD (required)")
	submitCmd.Flags().IntVar(&submitBatchDays, "batch-size-days", 1, "Batch window size in days")
	submitCmd.Flags().StringArrayVar(&submitColumns, "column", nil, "Output column as name:type (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitDependentRefs, "dependent-table", nil, "Dependent table as logical=actual (repeatable)")
	submitCmd.MarkFlagRequired("query-file")
	submitCmd.MarkFlagRequired("start")
	submitCmd.MarkFlagRequired("end")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	queryBytes, err := os.ReadFile(submitQueryFile)
	if err != nil {
		return fmt.Errorf("failed to read query file: %w", err)
	}

	start, err := time.Parse("2006-01-02", submitStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", submitEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	columns, err := parseColumns(submitColumns)
	if err != nil {
		return err
	}
	dependentTables, err := parseKeyValues(submitDependentRefs)
	if err != nil {
		return err
	}

	req := model.SubmitRequest{
		QueryString:        string(queryBytes),
		SourceDialect:      submitDialect,
		Start:              start,
		End:                end,
		BatchSizeDays:      submitBatchDays,
		Columns:            columns,
		DependentTablesMap: dependentTables,
		ExecutionTime:      time.Now(),
	}
	if err := req.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/api/jobs", config.Server.Host, config.Server.Port)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("server rejected job (%s): %s", resp.Status, string(respBody))
	}

	var submitResp model.SubmitResponse
	if err := json.Unmarshal(respBody, &submitResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job submitted: %s\n", submitResp.JobID)
	return nil
}

func parseColumns(raw []string) ([]model.Column, error) {
	columns := make([]model.Column, 0, len(raw))
	for _, c := range raw {
		name, typ, ok := strings.Cut(c, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("invalid --column %q, expected name:type", c)
		}
		columns = append(columns, model.Column{Name: name, Type: typ})
	}
	return columns, nil
}

func parseKeyValues(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid %q, expected key=value", kv)
		}
		out[key] = value
	}
	return out, nil
}
