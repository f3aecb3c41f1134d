// Package elasticsearch stores product indexes in an Elasticsearch cluster,
// one index per owner.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/utafrali/catalog-indexer/internal/document"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

// esBulkItem is the per-action result of a bulk request.
type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool                    `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// Opener opens per-owner writers against one cluster.
type Opener struct {
	client *elasticsearch.Client
	prefix string
	logger *slog.Logger

	mu    sync.Mutex
	ready map[string]struct{}
}

// NewOpener creates an opener for the cluster at esURL. Index names are
// <prefix><owner>_products.
func NewOpener(esURL, prefix string, logger *slog.Logger) (*Opener, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}
	return &Opener{
		client: client,
		prefix: prefix,
		logger: logger,
		ready:  make(map[string]struct{}),
	}, nil
}

// IndexName returns the index holding owner's products.
func (o *Opener) IndexName(owner string) string {
	return strings.ToLower(o.prefix + owner + "_" + engine.IndexName)
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (o *Opener) Ping(ctx context.Context) error {
	res, err := o.client.Ping(o.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// Open implements engine.Opener. The owner's index is created on first use.
func (o *Opener) Open(ctx context.Context, owner string) (engine.Writer, error) {
	name := o.IndexName(owner)
	if err := o.ensureIndex(ctx, name); err != nil {
		return nil, err
	}
	return &Writer{client: o.client, index: name, logger: o.logger}, nil
}

// ensureIndex checks whether the index exists and creates it if not.
func (o *Opener) ensureIndex(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.ready[name]; ok {
		return nil
	}

	res, err := o.client.Indices.Exists([]string{name}, o.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		o.ready[name] = struct{}{}
		return nil
	}

	res, err = o.client.Indices.Create(
		name,
		o.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		o.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			if errResp.Error.Type == "resource_already_exists_exception" {
				o.ready[name] = struct{}{}
				return nil
			}
			return fmt.Errorf("elasticsearch: create index: %s: %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("elasticsearch: create index: unexpected status %s", res.Status())
	}

	o.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", name))
	o.ready[name] = struct{}{}
	return nil
}

// DeleteIndex removes the owner's index. A missing index is not an error.
func (o *Opener) DeleteIndex(ctx context.Context, owner string) error {
	name := o.IndexName(owner)
	res, err := o.client.Indices.Delete([]string{name}, o.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch delete index: unexpected status %s", res.Status())
	}

	o.mu.Lock()
	delete(o.ready, name)
	o.mu.Unlock()
	return nil
}

// Writer buffers operations as bulk NDJSON and sends them on Commit.
type Writer struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger

	buf     bytes.Buffer
	pending int
	closed  bool
}

func (w *Writer) encode(action string, id string, source any) error {
	enc := json.NewEncoder(&w.buf)
	meta := map[string]any{
		action: map[string]any{"_index": w.index, "_id": id},
	}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("elasticsearch bulk: encode action: %w", err)
	}
	if source != nil {
		if err := enc.Encode(source); err != nil {
			return fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}
	w.pending++
	return nil
}

// Update implements engine.Writer.
func (w *Writer) Update(_ context.Context, doc *document.Document) error {
	if w.closed {
		return engine.ErrClosed
	}
	return w.encode("index", doc.ID(), doc.ToMap())
}

// Delete implements engine.Writer.
func (w *Writer) Delete(_ context.Context, id string) error {
	if w.closed {
		return engine.ErrClosed
	}
	return w.encode("delete", id, nil)
}

// Commit sends buffered operations in one bulk request and refreshes the
// index. Buffered operations are kept only when the request never reached
// the cluster.
func (w *Writer) Commit(ctx context.Context) error {
	if w.closed {
		return engine.ErrClosed
	}
	if w.pending == 0 {
		return nil
	}

	res, err := w.client.Bulk(
		bytes.NewReader(w.buf.Bytes()),
		w.client.Bulk.WithIndex(w.index),
		w.client.Bulk.WithRefresh("true"),
		w.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	count := w.pending
	w.buf.Reset()
	w.pending = 0

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			return fmt.Errorf("elasticsearch bulk: %s: %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("elasticsearch bulk: unexpected status %s", res.Status())
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			for action, r := range item {
				if action == "delete" && r.Status == http.StatusNotFound {
					continue
				}
				if r.Error.Type != "" {
					errMsgs = append(errMsgs, fmt.Sprintf("%s id=%s: %s: %s", action, r.ID, r.Error.Type, r.Error.Reason))
				}
			}
		}
		if len(errMsgs) > 0 {
			return fmt.Errorf("elasticsearch bulk: partial errors: %s", strings.Join(errMsgs, "; "))
		}
	}

	w.logger.DebugContext(ctx, "bulk committed", slog.String("index", w.index), slog.Int("operations", count))
	return nil
}

// Close implements engine.Writer.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	err := w.Commit(ctx)
	w.closed = true
	return err
}
