// Package bus carries quiz and document events between the API and the
// evaluation worker, in process over channels or across nodes over NATS.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const defaultChannelBuffer = 1000

// ChannelBus delivers messages in process. Each subscription owns a
// buffered channel drained by one goroutine, so a slow handler only
// delays its own topic.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	topics     map[string]map[*channelSubscription]struct{}
	closed     bool
	wg         sync.WaitGroup
	dropped    atomic.Int64
}

type channelSubscription struct {
	bus     *ChannelBus
	topic   string
	handler domain.MessageHandler
	inbox   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NewChannelBus creates an in-process bus whose subscriptions buffer up to
// bufferSize messages.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = defaultChannelBuffer
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     make(map[string]map[*channelSubscription]struct{}),
	}
}

// Publish hands the message to every subscriber of topic without blocking.
// A subscriber whose buffer is full misses the message; see Dropped.
func (b *ChannelBus) Publish(ctx context.Context, userID string, topic string, payload []byte) error {
	if userID == "" {
		return ErrUserRequired
	}
	msg := newMessage(userID, topic, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.topics[topic] {
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber buffer full, message dropped",
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe starts delivering topic messages to handler until the
// subscription, ctx or the bus ends.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		bus:     b,
		topic:   topic,
		handler: handler,
		inbox:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*channelSubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}

	b.wg.Add(1)
	go sub.loop()
	return sub, nil
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription and waits for running handlers to return.
// Buffered messages that were not yet handled are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.topics {
		for sub := range subs {
			sub.cancel()
		}
	}
	b.topics = make(map[string]map[*channelSubscription]struct{})
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *ChannelBus) detach(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[sub.topic]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

func (s *channelSubscription) loop() {
	defer s.bus.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"user_id", msg.UserID,
					"error", err,
				)
			}
		}
	}
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *channelSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.bus.detach(s)
	})
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
