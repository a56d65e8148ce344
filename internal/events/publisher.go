// Package events announces finished segmentation runs on NATS so downstream
// consumers (summarizers, dashboards) can pick them up.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chatdigest/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SegmentationEvent is published once per run
type SegmentationEvent struct {
	RunID       string                   `json:"run_id"`
	CompletedAt time.Time                `json:"completed_at"`
	Source      string                   `json:"source"`
	Channels    int                      `json:"channels"`
	Stats       models.SegmentationStats `json:"stats"`
	Failures    []models.ChannelFailure  `json:"failures,omitempty"`
}

// NewSegmentationEvent builds the event for result
func NewSegmentationEvent(runID, source string, result *models.SegmentationResult, completedAt time.Time) SegmentationEvent {
	channels := make(map[string]struct{})
	for _, c := range result.Conversations {
		channels[c.ChannelID] = struct{}{}
	}
	return SegmentationEvent{
		RunID:       runID,
		CompletedAt: completedAt.UTC(),
		Source:      source,
		Channels:    len(channels) + len(result.Failures),
		Stats:       result.Stats,
		Failures:    result.Failures,
	}
}

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher sends run events. A nil *Publisher is valid and publishes nothing,
// which is what callers get when NATS is not configured.
type Publisher struct {
	conn    conn
	subject string
	logger  zerolog.Logger
}

// Connect dials NATS. An empty url returns a nil publisher.
func Connect(url, token, subject string, logger zerolog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	logger = logger.With().Str("component", "events").Logger()

	opts := []nats.Option{
		nats.Name("chatdigest"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger zerolog.Logger) *Publisher {
	return &Publisher{conn: c, subject: subject, logger: logger}
}

// PublishSegmentation publishes event and waits for the server to acknowledge the flush
func (p *Publisher) PublishSegmentation(ctx context.Context, event SegmentationEvent) error {
	if p == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}

	p.logger.Debug().Str("subject", p.subject).Str("run_id", event.RunID).Msg("Segmentation event published")
	return nil
}

// Close closes the connection
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}
