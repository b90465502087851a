package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TreeWu/mongo-perf/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Convert JSON result lines from stdin into a CSV table",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := report.ReadJSONLines(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read results: %w", err)
			}
			levelSet := make(map[int]bool)
			for _, r := range results {
				for _, n := range r.Threads() {
					levelSet[n] = true
				}
			}
			levels := make([]int, 0, len(levelSet))
			for n := range levelSet {
				levels = append(levels, n)
			}
			sort.Ints(levels)

			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("csv"); path != "" && path != "-" {
				file, err := os.Create(path)
				if err != nil {
					return err
				}
				defer file.Close()
				out = file
			}
			return report.WriteCSV(out, levels, results)
		},
	}
	cmd.Flags().String("csv", "", "CSV output file, stdout when empty")
	return cmd
}
