package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TreeWu/mongo-perf/history"
)

var errRegression = errors.New("regression found")

func regressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regress",
		Short: "Check a revision in a history file for throughput regressions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			rev, _ := cmd.Flags().GetString("rev")
			threshold, _ := cmd.Flags().GetFloat64("threshold")

			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			h, err := history.Load(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			findings := h.Check(rev, threshold)
			for _, f := range findings {
				fmt.Fprintf(out, "regression found: %s\n", f)
			}
			if len(findings) > 0 {
				return fmt.Errorf("%w in %d of %d tests at %s", errRegression, len(findings), len(h.TestNames()), rev)
			}
			fmt.Fprintf(out, "no regression at %s\n", rev)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "history JSON file")
	cmd.Flags().String("rev", "", "revision to examine")
	cmd.Flags().Float64("threshold", 0.0001, "fractional drop from the previous revision that counts as a regression")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("rev")
	return cmd
}
