package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wmsyw/aiWriter-sub000/internal/observability"
	"github.com/wmsyw/aiWriter-sub000/pkg/history"
	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/stream"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow job status from the push stream",
	Long: `Subscribe to the backend push stream and print status changes as they
arrive. Terminal observations are recorded to the local job history.

--chapter limits output to jobs for one chapter. --types takes a glob
matched against the job type, e.g. '*_extract' or 'review_*'.

The subscription reconnects with a fixed backoff when the stream drops.
Interrupt with Ctrl-C.`,
	RunE: runWatch,
}

var (
	watchChapter string
	watchTypes   string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchChapter, "chapter", "", "Only show jobs for this chapter key")
	watchCmd.Flags().StringVar(&watchTypes, "types", "", "Glob filter on job type (e.g. '*_extract')")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	client, err := newBackendClient()
	if err != nil {
		return err
	}

	hist, err := history.Open(ctx, loadedConfig.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()

	pattern := watchTypes
	if pattern == "" {
		pattern = loadedConfig.Stream.TypePattern
	}

	rec := stream.NewReconciler(watchChapter,
		stream.WithLogger(log),
		stream.WithTypePattern(pattern),
		stream.WithOnUpdate(printJob),
		stream.WithOnJob(func(j job.Job) {
			if err := hist.Record(ctx, j); err != nil {
				log.Warn("history record failed", zap.String("job_id", j.ID), zap.Error(err))
			}
		}),
	)
	defer rec.Close()

	backoff := loadedConfig.Stream.ReconnectBackoff

	for {
		ended := make(chan struct{})
		src := &stream.ReaderSource{
			Open:   client,
			Logger: log,
			OnEnd:  func() { close(ended) },
		}

		if err := rec.Run(src); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Warn("stream connect failed", zap.Error(err), zap.Duration("retry_in", backoff))
		} else {
			log.Info("stream connected")
			select {
			case <-ctx.Done():
				return nil
			case <-ended:
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("stream dropped", zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func printJob(j job.Job) {
	label := string(j.Type)
	if info, ok := job.Registry[j.Type]; ok {
		label = info.Label
	}
	line := fmt.Sprintf("%s  %-24s %-10s", time.Now().Format("15:04:05"), label, j.Status)
	if key := j.Context(); key != "" {
		line += "  chapter=" + key
	}
	if j.Status == job.StatusFailed && j.Error != "" {
		line += "  error=" + j.Error
	}
	fmt.Println(line)
}
