package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wmsyw/aiWriter-sub000/internal/devserver"
	"github.com/wmsyw/aiWriter-sub000/internal/observability"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a stub authoring backend for local development",
	Long: `Run a stub backend that accepts job submissions and walks each job
through queued, running, and succeeded on a fixed schedule. Useful for
exercising submit, watch, and the push stream without a real backend.`,
	RunE: runDevserver,
}

var (
	devserverHost      string
	devserverPort      int
	devserverStepDelay time.Duration
)

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().StringVar(&devserverHost, "host", "127.0.0.1", "Listen host")
	devserverCmd.Flags().IntVar(&devserverPort, "port", 8080, "Listen port")
	devserverCmd.Flags().DurationVar(&devserverStepDelay, "step-delay", devserver.DefaultStepDelay,
		"Pause between scripted status transitions")
}

func runDevserver(_ *cobra.Command, _ []string) error {
	srv := devserver.New(devserverHost, devserverPort, devserver.Options{
		StepDelay: devserverStepDelay,
		Logger:    observability.CLILogger,
		Heartbeat: 15 * time.Second,
	})
	return srv.ListenAndServe()
}
