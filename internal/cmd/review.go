package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wmsyw/aiWriter-sub000/pkg/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review <output.json>",
	Short: "Normalize a raw review output",
	Long: `Normalize a raw review-scoring output into the canonical view.

Backends disagree on field names (scores vs dimensions, avg_score vs
overall_score). This command resolves the aliases, averages the
dimension scores when no explicit average exists, and prints the
normalized result with its quality grade.`,
	Args: cobra.ExactArgs(1),
	RunE: runReviewNormalize,
}

var reviewJSON bool

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().BoolVar(&reviewJSON, "json", false, "Output as JSON")
}

func runReviewNormalize(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read review output: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("review output is not a JSON object: %w", err)
	}

	n := review.NormalizeJSON(data, nil)

	if reviewJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	}

	if n.Grade == review.GradeUnassessed {
		fmt.Printf("score: unassessed\n")
	} else {
		fmt.Printf("score: %.1f (%s)\n", n.AvgScore, n.Grade)
	}
	for _, d := range n.Dimensions {
		fmt.Printf("  %-12s %.1f  %s\n", d.Label, d.Score, d.Comment)
	}
	if len(n.Suggestions) > 0 {
		fmt.Println("suggestions:")
		for _, s := range n.Suggestions {
			fmt.Printf("  [%s] %s: %s\n", s.Priority, s.Aspect, s.Suggestion)
		}
	}
	if n.Summary != "" {
		fmt.Println("summary:", n.Summary)
	}
	return nil
}
