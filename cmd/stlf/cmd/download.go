package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	downloadRun    string
	downloadOutput string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the forecast output of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/download"
		if downloadRun != "" {
			path += "?run_id=" + url.QueryEscape(downloadRun)
		}
		resp, err := doRequest(http.MethodGet, path, "", nil)
		if err != nil {
			return fmt.Errorf("error downloading forecast: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return apiError(resp)
		}

		if downloadOutput == "-" {
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		}

		f, err := os.Create(downloadOutput)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("error writing output file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes to %s\n", n, downloadOutput)
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadRun, "run", "", "Run ID (default latest successful run)")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "forecast_output.csv", "Output file, or - for stdout")
	rootCmd.AddCommand(downloadCmd)
}
