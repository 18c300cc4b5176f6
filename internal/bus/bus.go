package bus

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = eris.New("event bus is closed")

	// ErrUserRequired is returned when a message has no owning user.
	ErrUserRequired = eris.New("event bus: user id is required")
)

// New returns the bus named by cfg.Type: "channel" for a single process,
// "nats" when the API and workers run as separate processes.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	}
	return nil, eris.Errorf("unsupported event bus type %q", cfg.Type)
}

// newMessage stamps a payload with a fresh id and the publish time.
func newMessage(userID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UnixNano(),
	}
}
