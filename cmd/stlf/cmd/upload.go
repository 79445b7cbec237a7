package cmd

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gridcast/stlf/pkg/olympus"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [csv-file]",
	Short: "Upload a load history CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}
		defer f.Close()

		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			return fmt.Errorf("error reading file: %w", err)
		}
		if err := mw.Close(); err != nil {
			return err
		}

		var res olympus.UploadResponse
		if err := doJSON(http.MethodPost, "/upload", mw.FormDataContentType(), &body, &res); err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s\n", filepath.Base(path), res.UploadID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
