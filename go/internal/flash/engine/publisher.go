package engine

import (
	"context"
	"sync"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/zerolog/log"
)

// Publisher delivers engine events to whatever transport the backend runs.
type Publisher interface {
	Publish(ctx context.Context, n events.Notification) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, n events.Notification) error

func (f PublisherFunc) Publish(ctx context.Context, n events.Notification) error {
	return f(ctx, n)
}

// MetricsCollector records publish outcomes.
type MetricsCollector interface {
	RecordEventPublished(eventType events.EventType, success bool, duration time.Duration)
}

// NoOpMetricsCollector discards everything.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordEventPublished(events.EventType, bool, time.Duration) {}

// EventCounters is an in-memory MetricsCollector served on the backend's
// stats endpoint.
type EventCounters struct {
	mu        sync.Mutex
	published map[events.EventType]uint64
	failed    map[events.EventType]uint64
	slowest   time.Duration
}

func NewEventCounters() *EventCounters {
	return &EventCounters{
		published: make(map[events.EventType]uint64),
		failed:    make(map[events.EventType]uint64),
	}
}

func (c *EventCounters) RecordEventPublished(eventType events.EventType, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		c.published[eventType]++
	} else {
		c.failed[eventType]++
	}
	c.slowest = max(c.slowest, duration)
}

// Snapshot returns counters keyed for JSON output.
func (c *EventCounters) Snapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	published := make(map[string]uint64, len(c.published))
	for k, v := range c.published {
		published[string(k)] = v
	}
	failed := make(map[string]uint64, len(c.failed))
	for k, v := range c.failed {
		failed[string(k)] = v
	}

	return map[string]interface{}{
		"published":       published,
		"failed":          failed,
		"slowest_publish": c.slowest.String(),
	}
}

// MetricPublisher wraps a Publisher with metrics collection.
type MetricPublisher struct {
	publisher Publisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher Publisher, metrics MetricsCollector) *MetricPublisher {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, n events.Notification) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, n)

	p.metrics.RecordEventPublished(n.EventType(), err == nil, time.Since(start))
	if err != nil {
		log.Error().Err(err).Str("event_type", string(n.EventType())).Msg("failed to publish event")
	}
	return err
}
