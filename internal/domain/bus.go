package domain

import "context"

// Topics carrying quiz and document work between the API and workers.
// Submitted/parsed topics are inputs; evaluated/assessed/alert are results.
const (
	TopicQuizSubmitted    = "rimborsami.quiz.submitted"
	TopicDocumentParsed   = "rimborsami.document.parsed"
	TopicQuizEvaluated    = "rimborsami.quiz.evaluated"
	TopicDocumentAssessed = "rimborsami.document.assessed"
	TopicDocumentAlert    = "rimborsami.document.alert"
)

// Message is the envelope every event travels in. Payload is the JSON
// body of the event; UserID names the user the event belongs to.
type Message struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// MessageHandler handles one delivered message. A returned error is logged
// by the bus; the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// EventBus publishes user-owned events and fans them out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, userID string, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a live registration returned by EventBus.Subscribe.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	Type string `mapstructure:"type"` // "channel" or "nats"

	ChannelBufferSize int `mapstructure:"channel_buffer_size"`

	NATSUrl           string `mapstructure:"nats_url"`
	NATSToken         string `mapstructure:"nats_token"`
	NATSMaxReconnects int    `mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `mapstructure:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup makes workers share each topic instead of every
	// worker receiving every message.
	NATSQueueGroup string `mapstructure:"nats_queue_group"`
}
