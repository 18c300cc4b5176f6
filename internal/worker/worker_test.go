package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rimborsami/rimborsami/internal/bus"
	"github.com/rimborsami/rimborsami/internal/cache"
	"github.com/rimborsami/rimborsami/internal/catalog"
	"github.com/rimborsami/rimborsami/internal/domain"
	"github.com/rimborsami/rimborsami/internal/pipeline"
	"github.com/rimborsami/rimborsami/internal/repository"
	"github.com/rimborsami/rimborsami/internal/rules"
)

type fixture struct {
	bus       *bus.ChannelBus
	published *countingBus
	repo      domain.Repository
	worker    *Worker
}

// countingBus counts Publish calls per topic at the moment they happen,
// before any subscriber sees them.
type countingBus struct {
	domain.EventBus
	mu     sync.Mutex
	counts map[string]int
}

func (b *countingBus) Publish(ctx context.Context, userID string, topic string, payload []byte) error {
	b.mu.Lock()
	b.counts[topic]++
	b.mu.Unlock()
	return b.EventBus.Publish(ctx, userID, topic, payload)
}

func (b *countingBus) count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[topic]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.SaveOpportunity(context.Background(), &domain.OpportunityDefinition{
		ID:        "flight-delay",
		Title:     "Ritardo volo",
		Category:  domain.CategoryFlight,
		MinAmount: decimal.NewFromInt(250),
		MaxAmount: decimal.NewFromInt(600),
		Active:    true,
	}))

	engine, err := rules.NewDefaultEngine()
	require.NoError(t, err)

	loader := catalog.NewLoader(repo, cache.NewLRUCache(10), time.Minute, nil)
	published := &countingBus{EventBus: eventBus, counts: make(map[string]int)}
	w := NewWorker(published, repo, loader, pipeline.NewProcessor(engine), nil)
	return &fixture{bus: eventBus, published: published, repo: repo, worker: w}
}

// collect subscribes to topic and forwards every message.
func (f *fixture) collect(t *testing.T, topic string) <-chan *domain.Message {
	t.Helper()
	out := make(chan *domain.Message, 10)
	_, err := f.bus.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		out <- msg
		return nil
	})
	require.NoError(t, err)
	return out
}

func receive(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestWorkerStartAndStop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 2}))
	stats := f.worker.GetStats()
	assert.Equal(t, 2, stats.SubscriptionCount)
	assert.ElementsMatch(t, []string{domain.TopicQuizSubmitted, domain.TopicDocumentParsed}, stats.Topics)

	require.NoError(t, f.worker.Stop())
	assert.Equal(t, 0, f.worker.GetStats().SubscriptionCount)
}

func TestWorkerStopWithBacklog(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))

	payload, _ := json.Marshal(QuizSubmittedMessage{
		UserID:  "user-backlog",
		Answers: map[string]string{"flights": "once"},
	})
	for i := 0; i < 50; i++ {
		require.NoError(t, f.bus.Publish(context.Background(), "user-backlog", domain.TopicQuizSubmitted, payload))
	}

	require.NoError(t, f.worker.Stop())
	atStop := f.published.count(domain.TopicQuizEvaluated)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, atStop, f.published.count(domain.TopicQuizEvaluated), "evaluations published after Stop returned")
	assert.LessOrEqual(t, atStop, 50)
}

func TestWorkerProcessesQuiz(t *testing.T) {
	f := newFixture(t)
	evaluated := f.collect(t, domain.TopicQuizEvaluated)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))
	defer f.worker.Stop()

	payload, _ := json.Marshal(QuizSubmittedMessage{
		UserID:  "user-quiz",
		TraceID: "trace-quiz",
		Answers: map[string]string{"flights": "multiple"},
	})
	require.NoError(t, f.bus.Publish(context.Background(), "user-quiz", domain.TopicQuizSubmitted, payload))

	msg := receive(t, evaluated)
	assert.Equal(t, "user-quiz", msg.UserID)

	var eval domain.QuizEvaluation
	require.NoError(t, json.Unmarshal(msg.Payload, &eval))
	assert.Equal(t, "trace-quiz", eval.Metadata.TraceID)
	require.Len(t, eval.Matches, 1)
	assert.Equal(t, "flight-delay", eval.Matches[0].OpportunityID)
	assert.True(t, eval.Matches[0].EstimatedAmount.Equal(decimal.NewFromInt(600)))

	stored, err := f.repo.GetQuizEvaluation(context.Background(), "user-quiz", eval.ID)
	require.NoError(t, err)
	assert.True(t, stored.TotalEstimated.Equal(decimal.NewFromInt(600)))
}

func TestWorkerProcessesDocument(t *testing.T) {
	f := newFixture(t)
	assessed := f.collect(t, domain.TopicDocumentAssessed)
	alerts := f.collect(t, domain.TopicDocumentAlert)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))
	defer f.worker.Stop()

	score := 85.0
	payload, _ := json.Marshal(DocumentParsedMessage{
		UserID:     "user-doc",
		DocumentID: "doc-1",
		Analysis: domain.DocumentAnalysis{
			DocumentType: "estratto_conto",
			Bank: &domain.BankAnalysis{
				RiskScore: &score,
				AnomaliesFound: []domain.Finding{
					{Description: "commissione di massimo scoperto"},
				},
			},
		},
	})
	require.NoError(t, f.bus.Publish(context.Background(), "user-doc", domain.TopicDocumentParsed, payload))

	msg := receive(t, assessed)
	var eval domain.DocumentEvaluation
	require.NoError(t, json.Unmarshal(msg.Payload, &eval))
	assert.Equal(t, 85, eval.Assessment.Score)
	assert.Equal(t, domain.RiskCritical, eval.Assessment.Level)
	assert.Equal(t, domain.DocumentBank, eval.Category)
	assert.True(t, eval.Alert)

	alert := receive(t, alerts)
	assert.Equal(t, "user-doc", alert.UserID)

	stored, err := f.repo.GetDocumentEvaluation(context.Background(), "user-doc", eval.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", stored.DocumentID)
}

func TestWorkerDocumentWithMistypedFields(t *testing.T) {
	f := newFixture(t)
	assessed := f.collect(t, domain.TopicDocumentAssessed)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))
	defer f.worker.Stop()

	payload := []byte(`{
		"userId": "user-mistyped",
		"documentId": "doc-2",
		"analysis": {
			"potential_issues": [1, 2],
			"bank_analysis": {"risk_score": "82", "anomalies_found": ["c"]}
		}
	}`)
	require.NoError(t, f.bus.Publish(context.Background(), "user-mistyped", domain.TopicDocumentParsed, payload))

	msg := receive(t, assessed)
	var eval domain.DocumentEvaluation
	require.NoError(t, json.Unmarshal(msg.Payload, &eval))
	assert.Equal(t, 82, eval.Assessment.Score)
	assert.Equal(t, 3, eval.Assessment.AnomalyCount)
}

func TestWorkerLowRiskDocumentHasNoAlert(t *testing.T) {
	f := newFixture(t)
	assessed := f.collect(t, domain.TopicDocumentAssessed)
	alerts := f.collect(t, domain.TopicDocumentAlert)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))
	defer f.worker.Stop()

	payload, _ := json.Marshal(DocumentParsedMessage{
		UserID:     "user-low",
		DocumentID: "doc-2",
		Analysis:   domain.DocumentAnalysis{DocumentType: "bolletta"},
	})
	require.NoError(t, f.bus.Publish(context.Background(), "user-low", domain.TopicDocumentParsed, payload))

	msg := receive(t, assessed)
	var eval domain.DocumentEvaluation
	require.NoError(t, json.Unmarshal(msg.Payload, &eval))
	assert.Equal(t, domain.RiskLow, eval.Assessment.Level)
	assert.False(t, eval.Alert)

	select {
	case <-alerts:
		t.Fatal("low risk document must not raise an alert")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	f := newFixture(t)
	evaluated := f.collect(t, domain.TopicQuizEvaluated)

	require.NoError(t, f.worker.Start(domain.WorkerConfig{WorkerCount: 1}))
	defer f.worker.Stop()

	require.NoError(t, f.bus.Publish(context.Background(), "user-bad", domain.TopicQuizSubmitted, []byte("{not json")))

	select {
	case <-evaluated:
		t.Fatal("malformed payload must not produce an evaluation")
	case <-time.After(100 * time.Millisecond):
	}
}
