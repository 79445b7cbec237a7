package cmd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func tlsConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: insecure}
}

func getHTTPClient() *http.Client {
	transport := &http.Transport{
		TLSClientConfig: tlsConfig(),
	}
	return &http.Client{
		Transport: transport,
	}
}

func authorize(h http.Header) {
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	} else if envKey := os.Getenv("STLF_API_KEY"); envKey != "" {
		h.Set("Authorization", "Bearer "+envKey)
	}
}

func doRequest(method, path, contentType string, body io.Reader) (*http.Response, error) {
	url := fmt.Sprintf("%s%s", strings.TrimRight(host, "/"), path)
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	authorize(req.Header)
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return getHTTPClient().Do(req)
}

// apiError turns a non-2xx response into an error carrying the server message.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)
}

// doJSON performs a request and decodes a JSON response into out.
func doJSON(method, path, contentType string, body io.Reader, out any) error {
	resp, err := doRequest(method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
