package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// OwnerHeader selects the index owner an admin request targets.
const OwnerHeader = "X-Index-Owner"

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id, owner, trace_id and span_id, then stores it in context
// via logger.NewContext. Handlers retrieve it with logger.FromContext(ctx).
//
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if owner := r.Header.Get(OwnerHeader); owner != "" && logger.OwnerFromContext(ctx) == "" {
				ctx = logger.WithOwner(ctx, owner)
			}

			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
