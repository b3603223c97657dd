package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/fundscore/internal/adapter/http/dto"
)

// apiClient talks to a fundscore service over its JSON API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL string
		token   string
		timeout time.Duration
	)

	client := &apiClient{}
	rootCmd := &cobra.Command{
		Use:           "fundscore-cli",
		Short:         "Fundscore CLI tool",
		Long:          `A command line interface for the fundscore account, ledger and transfer services.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client.baseURL = strings.TrimRight(baseURL, "/")
			client.token = token
			client.http = &http.Client{Timeout: timeout}
		},
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", envOr("FUNDSCORE_URL", "http://localhost:8080"), "Base URL of the fundscore API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("FUNDSCORE_TOKEN"), "Bearer token sent with every request")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		accountCmd(client),
		ledgerCmd(client),
		transferCmd(client),
		tokenCmd(),
		migrateCmd(),
		outboxCmd(),
	)

	return rootCmd
}

// call sends body as JSON and pretty-prints the response to out. Non-2xx
// answers become errors carrying the service's error code.
func (c *apiClient) call(ctx context.Context, out io.Writer, method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr dto.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("request failed (status %d, code %s): %s", resp.StatusCode, apiErr.Code, errorText(apiErr))
		}
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, truncate(string(data), 200))
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return printJSON(out, decoded)
}

func errorText(e dto.ErrorResponse) string {
	if e.Message == "" {
		return e.Error
	}
	return e.Error + ": " + e.Message
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
