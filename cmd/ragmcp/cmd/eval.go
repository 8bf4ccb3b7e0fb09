package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	ragerrors "github.com/aman-cerp/ragmcp/internal/errors"
)

func newEvalCmd() *cobra.Command {
	var numTestCases int

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the RAGAS-style evaluator against the golden dataset",
		Long: `Runs the same scoring evaluate_rag uses over MCP, but directly from
the command line, so CI can gate on retrieval quality without a client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDependencies()
			if err != nil {
				return err
			}
			if deps.Evaluator == nil {
				return ragerrors.ConfigError("evaluator is not configured (no LLM API key set)", nil)
			}

			ctx := cmd.Context()
			samples, err := deps.Dataset.Load(ctx, deps.Config.Eval.DatasetPath, numTestCases)
			if err != nil {
				return fmt.Errorf("load golden dataset: %w", err)
			}

			batch := deps.Evaluator.RunBatch(ctx, samples)

			out, err := json.MarshalIndent(map[string]any{
				"succeeded": batch.Succeeded,
				"failed":    batch.Failed,
				"mean":      batch.Mean,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if batch.Failed > 0 {
				return fmt.Errorf("%d of %d samples failed scoring", batch.Failed, len(samples))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&numTestCases, "num-test-cases", 0, "limit the number of golden-dataset samples evaluated (0 = all)")

	return cmd
}
