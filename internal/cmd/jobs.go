package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wmsyw/aiWriter-sub000/pkg/history"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the local job history",
	Long: `Inspect terminal jobs recorded by 'watch' and 'submit --wait'.

History lives in a local SQLite database; nothing here talks to the
backend.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs, newest first",
	RunE:  runJobsList,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete old history entries",
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().Int("limit", 50, "Maximum entries to show")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete entries older than this duration")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(cmd.Context(), loadedConfig.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs recorded")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tTYPE\tSTATUS\tCHAPTER\tRECORDED\tERROR")
	for _, e := range entries {
		chapter := e.ContextKey
		if chapter == "" {
			chapter = "-"
		}
		errMsg := e.Error
		if errMsg == "" {
			errMsg = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(e.JobID),
			e.Type,
			e.Status,
			chapter,
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			errMsg,
		)
	}
	return nil
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return fmt.Errorf("invalid --max-age: %w", err)
	}

	store, err := history.Open(cmd.Context(), loadedConfig.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	deleted, err := store.GC(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Deleted %d entries older than %s\n", deleted, maxAge)
	return nil
}

func shortJobID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
