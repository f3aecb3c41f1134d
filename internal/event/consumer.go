package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/catalog-indexer/pkg/kafka"
)

// Catalog topics that trigger reindexing.
var (
	TopicProductCreated  = pkgkafka.Topic("product", "created")
	TopicProductUpdated  = pkgkafka.Topic("product", "updated")
	TopicProductDeleted  = pkgkafka.Topic("product", "deleted")
	TopicPriceChanged    = pkgkafka.Topic("price", "changed")
	TopicCategoryChanged = pkgkafka.Topic("category", "changed")
)

// Topics lists every topic the consumer subscribes to.
func Topics() []string {
	return []string{
		TopicProductCreated,
		TopicProductUpdated,
		TopicProductDeleted,
		TopicPriceChanged,
		TopicCategoryChanged,
	}
}

// MetadataOwner names the event metadata entry selecting the index owner.
const MetadataOwner = "owner"

// ProductEventData is the payload of product and price events.
type ProductEventData struct {
	ProductID string `json:"product_id"`
}

// CategoryEventData is the payload of category events. ProductIDs lists the
// products whose category closure may have changed.
type CategoryEventData struct {
	CategoryID string   `json:"category_id"`
	ProductIDs []string `json:"product_ids"`
}

// Enqueuer accepts product ids for reindexing.
type Enqueuer interface {
	Enqueue(ctx context.Context, owner string, ids []string) (int, error)
}

// Consumer turns catalog change events into reindex requests. A deleted
// product is enqueued like any other: its build finds no product and the
// document is removed.
type Consumer struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewConsumer creates a new catalog event consumer.
func NewConsumer(enqueuer Enqueuer, logger *slog.Logger) *Consumer {
	return &Consumer{
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated, TopicProductDeleted, TopicPriceChanged:
		return c.handleProduct(ctx, event)
	case TopicCategoryChanged:
		return c.handleCategory(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProduct(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	id := data.ProductID
	if id == "" {
		id = event.AggregateID
	}
	if id == "" {
		c.logger.WarnContext(ctx, "event without product id",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
	return c.enqueue(ctx, event, []string{id})
}

func (c *Consumer) handleCategory(ctx context.Context, event *pkgkafka.Event) error {
	var data CategoryEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}
	if len(data.ProductIDs) == 0 {
		return nil
	}
	return c.enqueue(ctx, event, data.ProductIDs)
}

func (c *Consumer) enqueue(ctx context.Context, event *pkgkafka.Event, ids []string) error {
	owner := event.Metadata[MetadataOwner]
	n, err := c.enqueuer.Enqueue(ctx, owner, ids)
	if err != nil {
		return fmt.Errorf("enqueue from %s: %w", event.EventType, err)
	}
	c.logger.DebugContext(ctx, "enqueued products from event",
		slog.String("event_type", event.EventType),
		slog.String("event_id", event.EventID),
		slog.Int("count", n),
	)
	return nil
}
