package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gridcast/stlf/pkg/persephone/evaluator"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var (
	evalFile     string
	evalRemote   bool
	evalJSON     bool
	evalBaseline float64
	evalHorizon  int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a forecast against observed load",
	Long: `Reads actual and predicted series from a JSON or YAML file and prints the
evaluation report. The report is computed locally unless --remote is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalRemote && cmd.Flags().Changed("max-horizon") {
			return fmt.Errorf("--max-horizon cannot be combined with --remote; the server applies its own evaluation.max_horizon")
		}
		in, err := readEvaluationInput(evalFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("baseline-mape") {
			b := evalBaseline
			in.BaselineMAPE = &b
		}

		var report map[string]any
		if evalRemote {
			report, err = evaluateRemote(in)
		} else {
			report, err = evaluateLocal(cmd.Context(), in)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if evalJSON || !isTerminal(out) {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(out, report)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evalFile, "file", "f", "", "Input file (.json, .yaml or .yml)")
	evaluateCmd.Flags().BoolVar(&evalRemote, "remote", false, "Evaluate on the API server instead of locally")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the report as JSON")
	evaluateCmd.Flags().Float64Var(&evalBaseline, "baseline-mape", 0, "Baseline MAPE for drift classification")
	evaluateCmd.Flags().IntVar(&evalHorizon, "max-horizon", evaluator.DefaultMaxHorizon, "Largest horizon reported (local evaluation only)")
	evaluateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(evaluateCmd)
}

func readEvaluationInput(path string) (*evaluator.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading input: %w", err)
	}

	var in evaluator.Input
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &in)
	default:
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return &in, nil
}

func evaluateLocal(ctx context.Context, in *evaluator.Input) (map[string]any, error) {
	opts := evaluator.DefaultOptions()
	opts.MaxHorizon = evalHorizon
	engine, err := evaluator.NewEngine(opts)
	if err != nil {
		return nil, err
	}
	report, err := engine.Evaluate(ctx, in)
	if err != nil {
		return nil, err
	}
	return report.Sanitized(), nil
}

func evaluateRemote(in *evaluator.Input) (map[string]any, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}
	var report map[string]any
	if err := doJSON(http.MethodPost, "/evaluate", "application/json", bytes.NewReader(body), &report); err != nil {
		return nil, err
	}
	return report, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var reportSections = []string{
	evaluator.SectionAccuracy,
	evaluator.SectionReliability,
	evaluator.SectionBusiness,
	evaluator.SectionEfficiency,
	evaluator.SectionDrift,
	evaluator.SectionHorizon,
}

func printReport(out io.Writer, report map[string]any) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SECTION\tMETRIC\tVALUE")
	for _, section := range reportSections {
		metrics, ok := report[section].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range sortedKeys(metrics) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", section, k, formatValue(metrics[k]))
		}
	}
	w.Flush()
}

// sortedKeys orders numeric keys numerically and everything else lexically.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "-"
		}
		return strconv.FormatFloat(x, 'f', 4, 64)
	default:
		return fmt.Sprint(x)
	}
}
