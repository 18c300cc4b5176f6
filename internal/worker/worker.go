// Package worker evaluates quiz submissions and parsed documents that
// arrive on the event bus, off the request path.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/pipeline"
)

var tracer = otel.Tracer("rimborsami-worker")

// ErrStopped is returned for messages delivered after Stop began.
var ErrStopped = eris.New("worker is stopping")

// Worker consumes quiz submissions and parsed documents from the EventBus,
// evaluates them and publishes the results.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	catalog   *catalog.Loader
	processor *pipeline.Processor
	logger    *slog.Logger

	slots         chan struct{}
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	mu       sync.Mutex
	stopping bool
}

// NewWorker creates a new async worker. repo may be nil, in which case
// evaluations are published but not stored.
func NewWorker(bus domain.EventBus, repo domain.Repository, loader *catalog.Loader, processor *pipeline.Processor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		catalog:   loader,
		processor: processor,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// QuizSubmittedMessage is the payload of rimborsami.quiz.submitted.
type QuizSubmittedMessage struct {
	UserID  string            `json:"userId"`
	TraceID string            `json:"traceId,omitempty"`
	Answers map[string]string `json:"answers"`
	Form    map[string]any    `json:"form,omitempty"`
}

// DocumentParsedMessage is the payload of rimborsami.document.parsed.
type DocumentParsedMessage struct {
	UserID     string                  `json:"userId"`
	DocumentID string                  `json:"documentId"`
	TraceID    string                  `json:"traceId,omitempty"`
	Analysis   domain.DocumentAnalysis `json:"analysis"`
}

// Start subscribes to the input topics. At most cfg.WorkerCount messages
// are processed concurrently.
func (w *Worker) Start(cfg domain.WorkerConfig) error {
	n := cfg.WorkerCount
	if n <= 0 {
		n = 1
	}
	w.slots = make(chan struct{}, n)

	handlers := map[string]func(context.Context, *domain.Message) error{
		domain.TopicQuizSubmitted:  w.processQuiz,
		domain.TopicDocumentParsed: w.processDocument,
	}
	for _, topic := range []string{domain.TopicQuizSubmitted, domain.TopicDocumentParsed} {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.dispatch(handlers[topic]))
		if err != nil {
			w.unsubscribeAll()
			return eris.Wrapf(err, "subscribe %s", topic)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.logger.Info("workers started",
		"worker_count", n,
		"topics", len(w.subscriptions),
	)
	return nil
}

// dispatch runs handle on its own goroutine once a slot is free. A message
// still waiting for a slot when Stop is called is abandoned; one already
// running is finished with a context Stop does not cancel.
func (w *Worker) dispatch(handle func(context.Context, *domain.Message) error) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		w.mu.Lock()
		if w.stopping {
			w.mu.Unlock()
			return ErrStopped
		}
		w.wg.Add(1)
		w.mu.Unlock()

		select {
		case w.slots <- struct{}{}:
		case <-w.ctx.Done():
			w.wg.Done()
			return ErrStopped
		}

		go func() {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			if err := handle(context.WithoutCancel(w.ctx), msg); err != nil {
				w.logger.Error("message processing failed",
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}()
		return nil
	}
}

func (w *Worker) processQuiz(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var in QuizSubmittedMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		return eris.Wrap(err, "failed to parse quiz message")
	}
	userID := firstNonEmpty(in.UserID, msg.UserID)
	traceID := firstNonEmpty(in.TraceID, msg.ID)

	ctx, span := tracer.Start(ctx, "quiz.evaluate", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("trace.id", traceID),
	))
	defer span.End()

	activeCatalog, err := w.catalog.Active(ctx)
	if err != nil {
		return eris.Wrap(err, "load catalog")
	}

	eval := w.processor.ProcessQuiz(ctx, &pipeline.QuizInput{
		UserID:    userID,
		TraceID:   traceID,
		Answers:   in.Answers,
		Form:      in.Form,
		Catalog:   activeCatalog,
		StartTime: start,
	})

	if w.repo != nil {
		if err := w.repo.SaveQuizEvaluation(ctx, userID, eval); err != nil {
			w.logger.ErrorContext(ctx, "failed to save quiz evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}

	w.publish(ctx, userID, domain.TopicQuizEvaluated, eval)

	span.SetAttributes(attribute.Int("matches", len(eval.Matches)))
	w.logger.InfoContext(ctx, "quiz processed",
		"evaluation_id", eval.ID,
		"user_id", userID,
		"matches", len(eval.Matches),
		"total_estimated", eval.TotalEstimated.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) processDocument(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var in DocumentParsedMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		return eris.Wrap(err, "failed to parse document message")
	}
	userID := firstNonEmpty(in.UserID, msg.UserID)
	traceID := firstNonEmpty(in.TraceID, msg.ID)

	ctx, span := tracer.Start(ctx, "document.assess", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("document.id", in.DocumentID),
	))
	defer span.End()

	eval := w.processor.ProcessDocument(ctx, &pipeline.DocumentInput{
		UserID:     userID,
		DocumentID: in.DocumentID,
		TraceID:    traceID,
		Analysis:   &in.Analysis,
		StartTime:  start,
	})

	if w.repo != nil {
		if err := w.repo.SaveDocumentEvaluation(ctx, userID, eval); err != nil {
			w.logger.ErrorContext(ctx, "failed to save document evaluation",
				"evaluation_id", eval.ID,
				"error", err,
			)
		}
	}

	w.publish(ctx, userID, domain.TopicDocumentAssessed, eval)
	if eval.Alert {
		w.publish(ctx, userID, domain.TopicDocumentAlert, eval)
	}

	span.SetAttributes(
		attribute.Int("risk.score", eval.Assessment.Score),
		attribute.String("risk.level", string(eval.Assessment.Level)),
	)
	w.logger.InfoContext(ctx, "document processed",
		"evaluation_id", eval.ID,
		"user_id", userID,
		"document_id", in.DocumentID,
		"score", eval.Assessment.Score,
		"risk_level", eval.Assessment.Level,
		"alert", eval.Alert,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) publish(ctx context.Context, userID, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to encode result", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, userID, topic, payload); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish result", "topic", topic, "error", err)
	}
}

// Stop unsubscribes, abandons messages still waiting for a slot and waits
// for running ones to finish. Nothing is saved or published after it
// returns.
func (w *Worker) Stop() error {
	w.unsubscribeAll()

	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	w.logger.Info("workers stopped")
	return nil
}

func (w *Worker) unsubscribeAll() {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
