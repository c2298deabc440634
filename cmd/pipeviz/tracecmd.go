package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pipeviz/trace"
)

func newTraceCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
	}

	var runID string
	summaryCmd := &cobra.Command{
		Use:   "summary <file.sqlite3>",
		Short: "Summarize the runs stored in a trace database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := trace.Open(args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			runs := []string{runID}
			if runID == "" {
				runs, err = reader.Runs(cmd.Context())
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, id := range runs {
				cycles, err := reader.Cycles(id)
				if err != nil {
					return err
				}
				counts, err := reader.HazardCounts(id)
				if err != nil {
					return err
				}

				stalls := 0
				for _, c := range cycles {
					stalls += c.Stalls
				}

				fmt.Fprintf(out, "Run %s: %d cycles, %d stall cycles\n",
					id, len(cycles), stalls)

				kinds := make([]string, 0, len(counts))
				for k := range counts {
					kinds = append(kinds, k)
				}
				sort.Strings(kinds)
				for _, k := range kinds {
					fmt.Fprintf(out, "  %-10s %d\n", k, counts[k])
				}
			}

			return nil
		},
	}
	summaryCmd.Flags().StringVar(&runID, "run", "", "only summarize this run")

	cmd.AddCommand(summaryCmd)

	return cmd
}
