package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gridcast/stlf/pkg/hermes"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/spf13/cobra"
)

var (
	pullAddress string
	pullQuery   string
	pullSince   time.Duration
	pullStep    time.Duration
	pullOutput  string
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Export load history from Prometheus as a CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := hermes.NewSlogAdapter(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
		collector, err := persephone.NewPrometheusCollector(pullAddress, logger)
		if err != nil {
			return err
		}

		end := time.Now().UTC().Truncate(pullStep)
		records, err := collector.QueryRange(cmd.Context(), pullQuery, end.Add(-pullSince), end, pullStep)
		if err != nil {
			return fmt.Errorf("error querying prometheus: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("query %q returned no samples", pullQuery)
		}

		var out io.Writer = cmd.OutOrStdout()
		if pullOutput != "-" {
			f, err := os.Create(pullOutput)
			if err != nil {
				return fmt.Errorf("error creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := persephone.RecordsToCSV(out, records); err != nil {
			return err
		}
		if pullOutput != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", len(records), pullOutput)
		}
		return nil
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullAddress, "prometheus", "http://localhost:9090", "Prometheus address")
	pullCmd.Flags().StringVar(&pullQuery, "query", "", "PromQL expression yielding load")
	pullCmd.Flags().DurationVar(&pullSince, "since", 30*24*time.Hour, "How far back to fetch")
	pullCmd.Flags().DurationVar(&pullStep, "step", time.Hour, "Sample resolution")
	pullCmd.Flags().StringVarP(&pullOutput, "output", "o", "-", "Output file, or - for stdout")
	pullCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(pullCmd)
}
