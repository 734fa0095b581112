package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/handelsg/dojo-storefront/pkg/kafka"
	"github.com/handelsg/dojo-storefront/pkg/logger"
)

// Event types published by the storefront.
const (
	TypeCatalogRevalidated = "catalog.revalidated"
)

// Aggregate type constant.
const AggregateTypeCatalog = "catalog"

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// DefaultTopic receives every catalog event.
var DefaultTopic = pkgkafka.Topic("catalog")

// CatalogRevalidatedData is the payload for a catalog.revalidated event.
type CatalogRevalidatedData struct {
	Path            string    `json:"path"`
	InvalidatedKeys int       `json:"invalidated_keys"`
	RevalidatedAt   time.Time `json:"revalidated_at"`
}

// Publisher announces catalog changes to other systems.
type Publisher interface {
	PublishCatalogRevalidated(ctx context.Context, path string, invalidated int) error
}

// eventWriter is satisfied by *pkgkafka.Producer.
type eventWriter interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes catalog events to Kafka.
type Producer struct {
	kafka  eventWriter
	topic  string
	logger *slog.Logger
}

// NewProducer creates a new event producer writing to topic, or to
// DefaultTopic when topic is empty.
func NewProducer(kafka eventWriter, topic string, logger *slog.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		kafka:  kafka,
		topic:  topic,
		logger: logger,
	}
}

// PublishCatalogRevalidated publishes a catalog.revalidated event. An empty
// path means the whole catalog was revalidated.
func (p *Producer) PublishCatalogRevalidated(ctx context.Context, path string, invalidated int) error {
	data := CatalogRevalidatedData{
		Path:            path,
		InvalidatedKeys: invalidated,
		RevalidatedAt:   time.Now().UTC(),
	}

	aggregateID := path
	if aggregateID == "" {
		aggregateID = "/"
	}

	event, err := pkgkafka.NewEvent(TypeCatalogRevalidated, aggregateID, AggregateTypeCatalog, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create catalog.revalidated event: %w", err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, p.topic, event); err != nil {
		return fmt.Errorf("publish catalog.revalidated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published catalog.revalidated event",
		slog.String("path", aggregateID),
		slog.Int("invalidated_keys", invalidated),
	)

	return nil
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

// PublishCatalogRevalidated does nothing.
func (NopPublisher) PublishCatalogRevalidated(context.Context, string, int) error { return nil }
