package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/darioristic/crmflow/internal/domain"
	"github.com/darioristic/crmflow/internal/storage/memory"
)

type stubBus struct {
	mu       sync.Mutex
	err      error
	failures int
	subjects []string
}

func (b *stubBus) Publish(subject string, event domain.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	if b.err != nil {
		return b.err
	}
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *stubBus) Subscribe(ctx context.Context, group, pattern string, handler domain.EventHandler) (domain.BusSubscription, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBus) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subjects)
}

func appendEvent(t *testing.T, repo domain.EventRepository, eventType, aggregateID string) domain.DomainEvent {
	t.Helper()
	stored, err := repo.Append(domain.DomainEvent{
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: domain.AggregateOffer,
		Payload:       []byte(`{"companyId":"company-1"}`),
	})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	return stored
}

func TestRelay_ProcessOnce_DrainsBacklog(t *testing.T) {
	t.Parallel()

	repo := memory.NewEventRepository()
	appendEvent(t, repo, domain.EventOfferAccepted, "offer-1")
	appendEvent(t, repo, domain.EventOfferSent, "offer-2")
	bus := &stubBus{}

	relay := NewRelay(repo, bus, WithRetryBaseDelay(0))
	relay.ProcessOnce(context.Background())

	if got := bus.calls(); got != 2 {
		t.Fatalf("expected 2 publish calls, got %d", got)
	}
	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UnpublishedCount != 0 {
		t.Fatalf("expected empty backlog, got %d", stats.UnpublishedCount)
	}
	if bus.subjects[0] != domain.EventOfferAccepted {
		t.Fatalf("expected subject %s, got %s", domain.EventOfferAccepted, bus.subjects[0])
	}
}

func TestRelay_ProcessOnce_LeavesEventInBacklogAfterRetries(t *testing.T) {
	t.Parallel()

	repo := memory.NewEventRepository()
	appendEvent(t, repo, domain.EventOrderFulfilled, "order-1")
	bus := &stubBus{err: errors.New("publish failed")}

	relay := NewRelay(repo, bus, WithRetryBaseDelay(0), WithMaxAttempts(3))
	relay.ProcessOnce(context.Background())

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UnpublishedCount != 1 {
		t.Fatalf("expected event to stay in backlog, got %d unpublished", stats.UnpublishedCount)
	}
}

func TestRelay_ProcessOnce_RetriesWithinCycle(t *testing.T) {
	t.Parallel()

	repo := memory.NewEventRepository()
	appendEvent(t, repo, domain.EventDeliverySigned, "delivery-1")
	bus := &stubBus{failures: 2}

	relay := NewRelay(repo, bus, WithRetryBaseDelay(0), WithMaxAttempts(3))
	relay.ProcessOnce(context.Background())

	if got := bus.calls(); got != 1 {
		t.Fatalf("expected publish to succeed on third attempt, got %d successes", got)
	}
	stats, _ := repo.Stats()
	if stats.UnpublishedCount != 0 {
		t.Fatalf("expected empty backlog after retry success, got %d", stats.UnpublishedCount)
	}
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

// Без t.Parallel: тест читает package-level счётчики и gauge.
func TestRelay_ProcessOnce_RecordsPublishMetrics(t *testing.T) {
	repo := memory.NewEventRepository()
	appendEvent(t, repo, domain.EventOfferAccepted, "offer-9")
	bus := &stubBus{}

	sentBefore := counterValue(t, relayPublishAttempts.WithLabelValues("sent"))

	relay := NewRelay(repo, bus, WithRetryBaseDelay(0))
	relay.ProcessOnce(context.Background())

	sentAfter := counterValue(t, relayPublishAttempts.WithLabelValues("sent"))
	if sentAfter-sentBefore != 1.0 {
		t.Errorf("expected one sent attempt recorded, got delta %f", sentAfter-sentBefore)
	}

	backlog := &dto.Metric{}
	if err := relayUnpublishedEvents.Write(backlog); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if backlog.Gauge.GetValue() != 0 {
		t.Errorf("expected empty backlog gauge, got %f", backlog.Gauge.GetValue())
	}
}

func TestRelay_ProcessOnce_RespectsCancelledContext(t *testing.T) {
	t.Parallel()

	repo := memory.NewEventRepository()
	appendEvent(t, repo, domain.EventInvoicePaid, "invoice-1")
	bus := &stubBus{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	relay := NewRelay(repo, bus)
	relay.ProcessOnce(ctx)

	if got := bus.calls(); got != 0 {
		t.Fatalf("expected no publish calls after cancel, got %d", got)
	}
}
