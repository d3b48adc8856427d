package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"notarypro/internal/config"
)

const (
	TypeDocumentUploaded  = "document.uploaded"
	TypeDocumentCertified = "document.certified"
	TypeDocumentRejected  = "document.rejected"

	Source = "notarypro"
)

// Event is the envelope every driver serializes as JSON.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Data      interface{} `json:"data"`

	// Key groups related events; Kafka uses it as the message key.
	Key string `json:"-"`
}

func New(eventType, key string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    Source,
		Data:      data,
		Key:       key,
	}
}

// DocumentEvent is the payload of the document lifecycle events.
type DocumentEvent struct {
	DocumentID       string `json:"document_id"`
	VerificationCode string `json:"verification_code"`
	Status           string `json:"status"`
	OwnerID          string `json:"owner_id"`
	ActorID          string `json:"actor_id"`
	DocumentType     string `json:"document_type,omitempty"`
	Method           string `json:"method,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type noopPublisher struct{}

func NewNoop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(ctx context.Context, event Event) error { return nil }

func (noopPublisher) Close() error { return nil }

// NewPublisher builds the driver selected in config.
func NewPublisher(cfg config.EventsConfig, logger *zap.Logger) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return NewNoop(), nil
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, logger)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
