package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wmsyw/aiWriter-sub000/internal/observability"
	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/manifest"
	"github.com/wmsyw/aiWriter-sub000/pkg/poll"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job to the backend",
	Long: `Submit a job either from flags or from a submit manifest.

With --manifest, the job type and input come from a YAML or JSON manifest
validated against the embedded schema. Otherwise --type is required and
--chapter plus repeated --set key=value flags build the input payload.

With --wait the command polls until the job reaches a terminal status and
prints the output, exiting non-zero on task failure or poll timeout.`,
	RunE: runSubmit,
}

var (
	submitType     string
	submitChapter  string
	submitManifest string
	submitSets     []string
	submitWait     bool
	submitJSON     bool
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitType, "type", "", "Job type (generation, review_score, ...)")
	submitCmd.Flags().StringVar(&submitChapter, "chapter", "", "Chapter key the job runs against")
	submitCmd.Flags().StringVar(&submitManifest, "manifest", "", "Path to a submit manifest (YAML or JSON)")
	submitCmd.Flags().StringArrayVar(&submitSets, "set", nil, "Additional input field as key=value (repeatable)")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Poll until the job reaches a terminal status")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "Output as JSON")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	typ, input, err := resolveSubmission()
	if err != nil {
		return err
	}

	client, err := newBackendClient()
	if err != nil {
		return err
	}

	j, err := client.SubmitJob(ctx, typ, input)
	if err != nil {
		log.Error("submission failed", zap.String("type", string(typ)), zap.Error(err))
		return err
	}
	log.Info("job accepted", zap.String("job_id", j.ID), zap.String("type", string(j.Type)))

	if !submitWait {
		if submitJSON {
			return json.NewEncoder(os.Stdout).Encode(j)
		}
		fmt.Printf("job_id=%s type=%s status=%s\n", j.ID, j.Type, j.Status)
		return nil
	}

	output, err := poll.UntilTerminal(ctx, client, j.ID, poll.Options{
		Interval:    loadedConfig.Poll.Interval,
		MaxAttempts: loadedConfig.Poll.MaxAttempts,
		OnStatusChange: func(s job.Status) {
			log.Info("status changed", zap.String("job_id", j.ID), zap.String("status", string(s)))
		},
	})
	if err != nil {
		return err
	}

	if submitJSON || len(output) > 0 {
		_, writeErr := os.Stdout.Write(append(output, '\n'))
		return writeErr
	}
	fmt.Printf("job_id=%s status=succeeded\n", j.ID)
	return nil
}

func resolveSubmission() (job.Type, map[string]any, error) {
	if submitManifest != "" {
		m, err := manifest.Load(submitManifest)
		if err != nil {
			return "", nil, err
		}
		return m.Job.Type, m.Job.Input, nil
	}

	if submitType == "" {
		return "", nil, fmt.Errorf("either --manifest or --type is required")
	}
	typ := job.Type(submitType)
	if _, ok := job.Registry[typ]; !ok {
		return "", nil, fmt.Errorf("unknown job type %q", submitType)
	}

	input := map[string]any{}
	if submitChapter != "" {
		input["chapter_id"] = submitChapter
	}
	for _, kv := range submitSets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("invalid --set %q, expected key=value", kv)
		}
		input[key] = value
	}
	return typ, input, nil
}
