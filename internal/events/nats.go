package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type natsConnection interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type natsPublisher struct {
	conn   natsConnection
	logger *zap.Logger
}

// NewNATSPublisher publishes each event on the subject named by its type.
func NewNATSPublisher(url string, logger *zap.Logger) (Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("notarypro"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &natsPublisher{
		conn:   conn,
		logger: logger,
	}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.conn.Publish(event.Type, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("event published", zap.String("type", event.Type), zap.String("id", event.ID))
	return nil
}

func (p *natsPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	p.logger.Info("NATS connection closed")
	return p.conn.Drain()
}
