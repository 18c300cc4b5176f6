package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// Headers set on every published message alongside the JSON envelope.
const (
	headerUserID    = "Rimborsami-User-Id"
	headerMessageID = nats.MsgIdHdr
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsReconnectBuf   = 8 * 1024 * 1024
	natsDefaultRetries = 10
	natsDefaultWaitSec = 5
)

// NATSBus implements EventBus on NATS core subjects. The subject is the
// topic itself; with a queue group configured, each message is delivered to
// one worker replica.
type NATSBus struct {
	mu            sync.Mutex
	conn          *nats.Conn
	queueGroup    string
	subscriptions map[*natsSubscription]struct{}
	closed        bool
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
	once  sync.Once
}

// NewNATSBus connects to NATS. Connection failures at startup are retried
// in the background by the client, with the same budget as reconnects.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	retries := cfg.NATSMaxReconnects
	if retries == 0 {
		retries = natsDefaultRetries
	}
	wait := cfg.NATSReconnectWait
	if wait == 0 {
		wait = natsDefaultWaitSec
	}

	opts := []nats.Option{
		nats.Name("rimborsami"),
		nats.MaxReconnects(retries),
		nats.ReconnectWait(time.Duration(wait) * time.Second),
		nats.ReconnectBufSize(natsReconnectBuf),
		nats.RetryOnFailedConnect(true),
		nats.DrainTimeout(natsDrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, eris.Wrapf(err, "connect to NATS at %s", url)
	}

	slog.Info("NATS client started",
		"url", url,
		"connected", conn.IsConnected(),
		"queue_group", cfg.NATSQueueGroup,
	)

	return &NATSBus{
		conn:          conn,
		queueGroup:    cfg.NATSQueueGroup,
		subscriptions: make(map[*natsSubscription]struct{}),
	}, nil
}

// Publish sends a message envelope to the topic subject.
func (b *NATSBus) Publish(ctx context.Context, userID string, topic string, payload []byte) error {
	if userID == "" {
		return ErrUserRequired
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	m, err := encodeNATS(newMessage(userID, topic, payload))
	if err != nil {
		return err
	}
	if err := b.conn.PublishMsg(m); err != nil {
		return eris.Wrapf(err, "publish %s", topic)
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	cb := func(m *nats.Msg) {
		msg, err := decodeNATS(m)
		if err != nil {
			slog.Error("dropping undecodable NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error",
				"topic", msg.Topic,
				"message_id", msg.ID,
				"user_id", msg.UserID,
				"error", err,
			)
		}
	}

	var (
		natsSub *nats.Subscription
		err     error
	)
	if b.queueGroup != "" {
		natsSub, err = b.conn.QueueSubscribe(topic, b.queueGroup, cb)
	} else {
		natsSub, err = b.conn.Subscribe(topic, cb)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "subscribe to %s", topic)
	}

	sub := &natsSubscription{bus: b, topic: topic, sub: natsSub}
	b.subscriptions[sub] = struct{}{}
	return sub, nil
}

// Ping flushes the connection, which round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return eris.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection so in-flight handlers finish, then closes it.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscriptions = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return eris.Wrap(err, "drain NATS connection")
	}
	return nil
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

func (b *NATSBus) remove(s *natsSubscription) {
	b.mu.Lock()
	delete(b.subscriptions, s)
	b.mu.Unlock()
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.bus.remove(s)
		err = s.sub.Unsubscribe()
		if eris.Is(err, nats.ErrConnectionClosed) || eris.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
	})
	return err
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}

// encodeNATS wraps a message envelope in a NATS message with id headers.
func encodeNATS(msg *domain.Message) (*nats.Msg, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, eris.Wrap(err, "marshal message")
	}
	m := nats.NewMsg(msg.Topic)
	m.Data = data
	m.Header.Set(headerUserID, msg.UserID)
	m.Header.Set(headerMessageID, msg.ID)
	return m, nil
}

// decodeNATS unwraps a message envelope. Fields missing from the envelope
// are filled from the headers and the subject, so upstream publishers may
// send a minimal envelope.
func decodeNATS(m *nats.Msg) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		return nil, eris.Wrap(err, "unmarshal message")
	}
	if msg.Topic == "" {
		msg.Topic = m.Subject
	}
	if m.Header != nil {
		if msg.UserID == "" {
			msg.UserID = m.Header.Get(headerUserID)
		}
		if msg.ID == "" {
			msg.ID = m.Header.Get(headerMessageID)
		}
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}
	return &msg, nil
}
