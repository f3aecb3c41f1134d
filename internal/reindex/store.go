// Package reindex records when each indexed product is next due for a
// rebuild because a dated catalog record starts or ends.
package reindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a product due for a rebuild at At.
type Entry struct {
	ProductID string    `json:"product_id"`
	At        time.Time `json:"at"`
}

// Store keeps one pending rebuild time per product and owner. Schedule
// replaces any earlier value because each build recomputes it from scratch.
// Implementations must be safe for concurrent use.
type Store interface {
	Schedule(ctx context.Context, owner, productID string, at time.Time) error
	Clear(ctx context.Context, owner, productID string) error
	// Due returns up to limit entries due at or before before, earliest first.
	Due(ctx context.Context, owner string, before time.Time, limit int) ([]Entry, error)
}

// RedisStore keeps one sorted set per owner scored by due time in
// milliseconds, so that replicas share the schedule.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore stores entries under "<prefix>:<owner>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(owner string) string {
	return s.prefix + ":" + owner
}

// Schedule implements Store.
func (s *RedisStore) Schedule(ctx context.Context, owner, productID string, at time.Time) error {
	err := s.client.ZAdd(ctx, s.key(owner), redis.Z{Score: float64(at.UnixMilli()), Member: productID}).Err()
	if err != nil {
		return fmt.Errorf("schedule reindex of %s: %w", productID, err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, owner, productID string) error {
	if err := s.client.ZRem(ctx, s.key(owner), productID).Err(); err != nil {
		return fmt.Errorf("clear reindex of %s: %w", productID, err)
	}
	return nil
}

// Due implements Store.
func (s *RedisStore) Due(ctx context.Context, owner string, before time.Time, limit int) ([]Entry, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.key(owner), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due reindexes: %w", err)
	}

	entries := make([]Entry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{ProductID: id, At: time.UnixMilli(int64(z.Score)).UTC()})
	}
	return entries, nil
}

// MemoryStore is an in-memory Store for single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]time.Time)}
}

// Schedule implements Store.
func (s *MemoryStore) Schedule(_ context.Context, owner, productID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[owner]
	if !ok {
		m = make(map[string]time.Time)
		s.entries[owner] = m
	}
	m[productID] = at.Truncate(time.Millisecond).UTC()
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, owner, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[owner], productID)
	return nil
}

// Due implements Store.
func (s *MemoryStore) Due(_ context.Context, owner string, before time.Time, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for id, at := range s.entries[owner] {
		if !at.After(before) {
			entries = append(entries, Entry{ProductID: id, At: at})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].At.Equal(entries[j].At) {
			return entries[i].ProductID < entries[j].ProductID
		}
		return entries[i].At.Before(entries[j].At)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
