package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/catalog-indexer/internal/reindex"
	"github.com/utafrali/catalog-indexer/internal/worker"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/validator"
)

// DefaultDueLimit bounds reindex-due listings when no limit is given.
const DefaultDueLimit = 500

// ProductLister enumerates every product id of the catalog.
type ProductLister interface {
	ListProductIDs(ctx context.Context) ([]string, error)
}

// IndexService accepts indexing requests and hands them to the owner's worker.
type IndexService struct {
	registry     *worker.Registry
	products     ProductLister
	due          reindex.Store
	defaultOwner string
	logger       *slog.Logger
	now          func() time.Time
}

// NewIndexService creates a new index service. due may be nil when
// reindex-due dates are not recorded.
func NewIndexService(registry *worker.Registry, products ProductLister, due reindex.Store, defaultOwner string, logger *slog.Logger) *IndexService {
	return &IndexService{
		registry:     registry,
		products:     products,
		due:          due,
		defaultOwner: defaultOwner,
		logger:       logger,
		now:          time.Now,
	}
}

// Owner returns owner, or the default owner when owner is empty.
func (s *IndexService) Owner(owner string) string {
	if owner == "" {
		return s.defaultOwner
	}
	return owner
}

func (s *IndexService) worker(owner string) (*worker.Worker, error) {
	if !validator.IsEntityID(owner) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid index owner %q", owner))
	}
	w := s.registry.Get(owner)
	if w.State() == worker.StateStopped {
		return nil, apperrors.Unavailable(fmt.Sprintf("index worker for %s is stopped", owner))
	}
	return w, nil
}

// Enqueue schedules rebuilds of ids in owner's index and returns how many
// were accepted.
func (s *IndexService) Enqueue(ctx context.Context, owner string, ids []string) (int, error) {
	owner = s.Owner(owner)
	w, err := s.worker(owner)
	if err != nil {
		return 0, err
	}
	n := w.EnqueueAll(ids)
	s.logger.DebugContext(ctx, "enqueued products",
		slog.String("owner", owner),
		slog.Int("count", n),
	)
	return n, nil
}

// ReindexAll schedules a rebuild of every catalog product in owner's index.
func (s *IndexService) ReindexAll(ctx context.Context, owner string) (int, error) {
	owner = s.Owner(owner)
	w, err := s.worker(owner)
	if err != nil {
		return 0, err
	}

	ids, err := s.products.ListProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list product ids: %w", err)
	}
	n := w.EnqueueAll(ids)
	s.logger.InfoContext(ctx, "reindexing all products",
		slog.String("owner", owner),
		slog.Int("count", n),
	)
	return n, nil
}

// Due lists products of owner whose reindex date is at or before before.
func (s *IndexService) Due(ctx context.Context, owner string, before time.Time, limit int) ([]reindex.Entry, error) {
	if s.due == nil {
		return nil, apperrors.Unavailable("reindex-due tracking is disabled")
	}
	if before.IsZero() {
		before = s.now()
	}
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	entries, err := s.due.Due(ctx, s.Owner(owner), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list due products: %w", err)
	}
	return entries, nil
}

// ReindexDue schedules rebuilds of products whose reindex date has passed.
func (s *IndexService) ReindexDue(ctx context.Context, owner string, limit int) (int, error) {
	owner = s.Owner(owner)
	entries, err := s.Due(ctx, owner, s.now(), limit)
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ProductID
	}
	return s.Enqueue(ctx, owner, ids)
}

// Status reports every running worker.
func (s *IndexService) Status(_ context.Context) []worker.Status {
	owners := s.registry.Owners()
	out := make([]worker.Status, 0, len(owners))
	for _, o := range owners {
		if w, ok := s.registry.Lookup(o); ok {
			out = append(out, w.Status())
		}
	}
	return out
}

// Ready reports whether the default owner's worker can still accept work.
func (s *IndexService) Ready(_ context.Context) error {
	w, ok := s.registry.Lookup(s.defaultOwner)
	if ok && w.State() == worker.StateStopped {
		return fmt.Errorf("index worker for %s is stopped", s.defaultOwner)
	}
	return nil
}
