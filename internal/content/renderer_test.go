package content

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/httpclient"
)

func noRetryClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return httpclient.New(cfg)
}

func TestHTTPRenderer_RenderAsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/data-resources/DR-1/text", r.URL.Path)
		assert.Equal(t, "WG-1111", r.URL.Query().Get("productId"))
		_, _ = w.Write([]byte("Chrome plated widget body"))
	}))
	defer srv.Close()

	r := NewHTTPRenderer(noRetryClient(), srv.URL+"/")
	text, err := r.RenderAsText(context.Background(), "DR-1", "WG-1111")
	require.NoError(t, err)
	assert.Equal(t, "Chrome plated widget body", text)
}

func TestHTTPRenderer_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"data resource DR-9"}}`))
	}))
	defer srv.Close()

	r := NewHTTPRenderer(noRetryClient(), srv.URL)
	_, err := r.RenderAsText(context.Background(), "DR-9", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "DR-9")
}

func TestHTTPRenderer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewDefaultHTTPRenderer(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.RenderAsText(context.Background(), "DR-1", "P1")
	require.Error(t, err)
}

func TestHTTPRenderer_EscapesIDs(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := NewHTTPRenderer(noRetryClient(), srv.URL).RenderAsText(context.Background(), "a/b", "")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/data-resources/a%2Fb/text", gotPath)
}

func TestStatic(t *testing.T) {
	s := Static{"DR-1": "hello"}
	text, err := s.RenderAsText(context.Background(), "DR-1", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	text, err = s.RenderAsText(context.Background(), "missing", "")
	require.NoError(t, err)
	assert.Empty(t, text)
}
