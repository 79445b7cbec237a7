package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/gridcast/stlf/pkg/olympus"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
	"github.com/spf13/cobra"
)

var (
	runUpload string
	runStream bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train and evaluate a forecast on an uploaded history",
	Long: `Runs the forecasting pipeline on the given upload, or on the most recent
upload when none is named.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runStream {
			return streamRun(cmd.OutOrStdout(), runUpload)
		}

		path := "/run"
		if runUpload != "" {
			path += "?upload_id=" + url.QueryEscape(runUpload)
		}
		var res olympus.RunResponse
		if err := doJSON(http.MethodPost, path, "", nil, &res); err != nil {
			return fmt.Errorf("error running pipeline: %w", err)
		}
		printRunResult(cmd.OutOrStdout(), &res)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runUpload, "upload", "", "Upload ID to train on (default latest)")
	runCmd.Flags().BoolVar(&runStream, "stream", false, "Stream stage progress while the pipeline runs")
	rootCmd.AddCommand(runCmd)
}

func streamRun(out io.Writer, uploadID string) error {
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := url.URL{Scheme: scheme, Host: u.Host, Path: strings.TrimRight(u.Path, "/") + "/run/stream"}
	if uploadID != "" {
		q := wsURL.Query()
		q.Set("upload_id", uploadID)
		wsURL.RawQuery = q.Encode()
	}

	header := http.Header{}
	authorize(header)
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = tlsConfig()
	conn, resp, err := dialer.Dial(wsURL.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return apiError(resp)
		}
		return fmt.Errorf("error connecting to stream: %w", err)
	}
	defer conn.Close()

	for {
		var msg olympus.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("stream closed before the run finished: %w", err)
		}
		switch msg.Type {
		case olympus.StreamStage:
			if e := msg.Event; e != nil {
				fmt.Fprintf(out, "%-10s rows=%d cols=%d %s\n", e.Stage, e.Rows, e.Columns, e.Duration)
			}
		case olympus.StreamResult:
			if msg.Result == nil {
				return fmt.Errorf("stream result carried no payload")
			}
			printRunResult(out, msg.Result)
			return nil
		case olympus.StreamError:
			return fmt.Errorf("run failed with status %d: %s", msg.Status, msg.Error)
		}
	}
}

func printRunResult(out io.Writer, res *olympus.RunResponse) {
	fmt.Fprintf(out, "Run %s: %s\n", res.RunID, res.Message)
	if acc, ok := res.Report[evaluator.SectionAccuracy].(map[string]any); ok {
		fmt.Fprintf(out, "MAPE: %s\n", formatValue(acc[evaluator.KeyMAPE]))
	}
	if drift, ok := res.Report[evaluator.SectionDrift].(map[string]any); ok {
		fmt.Fprintf(out, "Drift: %v\n", drift[evaluator.DriftStatusKey])
	}
	fmt.Fprintf(out, "Download: %s\n", res.DownloadURL)
}
