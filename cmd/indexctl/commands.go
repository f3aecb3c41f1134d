package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd(out io.Writer) *cobra.Command {
	var apiURL, owner string
	client := func() *apiClient { return newAPIClient(apiURL, owner) }

	root := &cobra.Command{
		Use:           "indexctl",
		Short:         "Operate the catalog indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&apiURL, "api", "a", envOr("INDEXER_URL", "http://localhost:8011"), "Indexer base URL")
	root.PersistentFlags().StringVarP(&owner, "owner", "o", "", "Index owner (server default when empty)")

	root.AddCommand(
		&cobra.Command{
			Use:   "enqueue PRODUCT_ID...",
			Short: "Queue products for reindexing",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := client().call(cmd.Context(), http.MethodPost, "/api/v1/index/products", nil,
					map[string]any{"productIds": args})
				if err != nil {
					return err
				}
				return printJSON(out, data)
			},
		},
		&cobra.Command{
			Use:   "reindex",
			Short: "Queue every catalog product for reindexing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := client().call(cmd.Context(), http.MethodPost, "/api/v1/index/reindex", nil,
					map[string]any{"mode": "all"})
				if err != nil {
					return err
				}
				return printJSON(out, data)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show index worker status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				data, err := client().call(cmd.Context(), http.MethodGet, "/api/v1/index/status", nil, nil)
				if err != nil {
					return err
				}
				return printJSON(out, data)
			},
		},
		newDueCmd(out, client),
	)
	return root
}

func newDueCmd(out io.Writer, client func() *apiClient) *cobra.Command {
	var (
		before  string
		limit   int
		enqueue bool
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List products whose dated catalog data changes, optionally queueing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enqueue {
				data, err := client().call(cmd.Context(), http.MethodPost, "/api/v1/index/reindex", nil,
					map[string]any{"mode": "due", "limit": limit})
				if err != nil {
					return err
				}
				return printJSON(out, data)
			}

			q := url.Values{}
			if before != "" {
				if _, err := time.Parse(time.RFC3339, before); err != nil {
					return fmt.Errorf("--before must be RFC 3339: %w", err)
				}
				q.Set("before", before)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			data, err := client().call(cmd.Context(), http.MethodGet, "/api/v1/index/reindex-due", q, nil)
			if err != nil {
				return err
			}
			return printJSON(out, data)
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Due cutoff as RFC 3339 (default now)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of products")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the products that are due now")
	return cmd
}

func printJSON(out io.Writer, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
