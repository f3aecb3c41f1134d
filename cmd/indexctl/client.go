package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/catalog-indexer/pkg/httpclient"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
)

const serviceName = "indexer"

// apiClient calls the indexer admin API.
type apiClient struct {
	http  *httpclient.Client
	base  string
	owner string
}

func newAPIClient(base, owner string) *apiClient {
	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "indexctl"
	return &apiClient{http: httpclient.New(cfg), base: strings.TrimRight(base, "/"), owner: owner}
}

// call issues the request and returns the "data" member of the response
// envelope.
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set(middleware.OwnerHeader, c.owner)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}
