package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/gridcast/stlf/pkg/domain"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List training runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			var run domain.TrainingRun
			if err := doJSON(http.MethodGet, "/runs/"+url.PathEscape(args[0]), "", nil, &run); err != nil {
				return fmt.Errorf("error fetching run: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		var runs []domain.TrainingRun
		path := "/runs?limit=" + strconv.Itoa(runsLimit)
		if err := doJSON(http.MethodGet, path, "", nil, &runs); err != nil {
			return fmt.Errorf("error listing runs: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSTATUS\tUPLOAD\tTRAIN\tTEST\tMAPE\tSTARTED")
		for _, r := range runs {
			mape := "-"
			if r.MAPE != nil {
				mape = formatValue(*r.MAPE)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.ID, r.Status, r.UploadID, r.TrainRows, r.TestRows, mape, r.StartedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	rootCmd.AddCommand(runsCmd)
}
