package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/catalog-indexer/pkg/httpclient"
)

// serviceName identifies the content service in downstream errors and
// circuit breaker metrics.
const serviceName = "content-service"

// maxTextBytes bounds a rendered body.
const maxTextBytes = 8 << 20

// Renderer turns a data resource into plain text for indexing.
type Renderer interface {
	RenderAsText(ctx context.Context, dataResourceID, productID string) (string, error)
}

// HTTPRenderer renders content through the content service.
type HTTPRenderer struct {
	client  httpclient.Doer
	baseURL string
}

// NewHTTPRenderer creates a renderer calling baseURL through client.
func NewHTTPRenderer(client httpclient.Doer, baseURL string) *HTTPRenderer {
	return &HTTPRenderer{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewDefaultHTTPRenderer wires the retrying client behind a circuit breaker.
func NewDefaultHTTPRenderer(baseURL string, logger *slog.Logger) *HTTPRenderer {
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(serviceName),
		logger,
	)
	return NewHTTPRenderer(cb, baseURL)
}

// RenderAsText fetches the text rendition of a data resource.
func (r *HTTPRenderer) RenderAsText(ctx context.Context, dataResourceID, productID string) (string, error) {
	u := fmt.Sprintf("%s/api/v1/data-resources/%s/text", r.baseURL, url.PathEscape(dataResourceID))
	if productID != "" {
		u += "?productId=" + url.QueryEscape(productID)
	}

	resp, err := r.client.Get(ctx, u)
	if err != nil {
		return "", fmt.Errorf("render data resource %s: %w", dataResourceID, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("render data resource %s: %w", dataResourceID, httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBytes))
	if err != nil {
		return "", fmt.Errorf("read rendered data resource %s: %w", dataResourceID, err)
	}
	return string(body), nil
}

// Static renders from a fixed map. It is used when no content service is
// configured and in tests.
type Static map[string]string

// RenderAsText implements Renderer. Unknown resources render as empty text.
func (s Static) RenderAsText(_ context.Context, dataResourceID, _ string) (string, error) {
	return s[dataResourceID], nil
}
