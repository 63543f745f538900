package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
)

var busPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_bus_publish_total",
	Help: "Total number of bus publish attempts grouped by result.",
}, []string{"result"})

// Bus оборачивает Kafka в транспорт pub/sub c ленивым подключением.
// Подключение идемпотентно: конкурентные вызовы делят одну попытку
// коннекта. Publish — best-effort: при недоступном брокере сообщение
// отбрасывается с предупреждением.
type Bus struct {
	brokers []string
	logger  *log.Entry

	mu         sync.Mutex
	producer   *Producer
	connecting chan struct{}
	closed     bool

	subsMu sync.Mutex
	subs   []*subscription
}

// NewBus создаёт шину событий. Подключение к брокерам откладывается до
// первого Publish или явного Connect.
func NewBus(brokers []string) *Bus {
	return &Bus{
		brokers: brokers,
		logger:  log.WithField("component", "event-bus"),
	}
}

// Connect устанавливает подключение к брокерам. Повторный вызов на живом
// подключении — no-op; конкурентные вызовы ждут общую попытку. Ошибка
// подключения логируется и оставляет шину в отключённом состоянии.
// Закрытая шина не переподключается.
func (b *Bus) Connect(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.producer != nil {
		b.mu.Unlock()
		return
	}
	if b.connecting != nil {
		// Другая горутина уже подключается: ждём её результат.
		ch := b.connecting
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		return
	}

	ch := make(chan struct{})
	b.connecting = ch
	b.mu.Unlock()

	producer, err := NewProducer(b.brokers)

	b.mu.Lock()
	b.connecting = nil
	switch {
	case err != nil:
	case b.closed:
		// Bus закрыли, пока шло подключение.
		_ = producer.Close()
	default:
		b.producer = producer
	}
	b.mu.Unlock()
	close(ch)

	if err != nil {
		b.logger.WithError(err).WithField("brokers", b.brokers).Warn("event bus connect failed, staying disconnected")
	}
}

// Connected сообщает, установлено ли соединение с брокером.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.producer != nil
}

// Publish сериализует конверт и отправляет его в topic, совпадающий с
// subject. Если шина не подключена, сначала пробует подключиться; если
// подключиться не удалось, сообщение отбрасывается с предупреждением.
func (b *Bus) Publish(subject string, event domain.DomainEvent) error {
	b.Connect(context.Background())

	b.mu.Lock()
	producer := b.producer
	b.mu.Unlock()

	if producer == nil {
		busPublishTotal.WithLabelValues("dropped").Inc()
		b.logger.WithFields(log.Fields{
			"subject":      subject,
			"aggregate_id": event.AggregateID,
		}).Warn("event bus is not connected, dropping message")
		return fmt.Errorf("%w: bus is not connected", domain.ErrEventPublish)
	}

	if err := producer.PublishEnvelope(subject, NewEnvelope(event)); err != nil {
		busPublishTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrEventPublish, err)
	}

	busPublishTotal.WithLabelValues("sent").Inc()
	return nil
}

// Subscribe создаёт долгоживущую подписку consumer group на все топики,
// покрытые subject-паттерном.
func (b *Bus) Subscribe(ctx context.Context, group, pattern string, handler domain.EventHandler) (domain.BusSubscription, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	topics, err := ExpandPattern(pattern)
	if err != nil {
		return nil, err
	}

	sub, err := newSubscription(b.brokers, group, topics, handler)
	if err != nil {
		return nil, err
	}
	sub.start(ctx)

	b.subsMu.Lock()
	b.subs = append(b.subs, sub)
	b.subsMu.Unlock()

	b.logger.WithFields(log.Fields{
		"group":   group,
		"pattern": pattern,
		"topics":  topics,
	}).Info("event bus subscription started")

	return sub, nil
}

// Close останавливает подписки (дорабатывают текущие сообщения, новых не
// принимают) и затем освобождает подключение. После Close шина больше не
// подключается: Publish отбрасывает сообщения, Subscribe возвращает
// ошибку.
func (b *Bus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.subsMu.Lock()
	subs := b.subs
	b.subs = nil
	b.subsMu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			b.logger.WithError(err).Warn("failed to close bus subscription")
		}
	}

	b.mu.Lock()
	producer := b.producer
	b.producer = nil
	b.mu.Unlock()

	if producer != nil {
		if err := producer.Close(); err != nil {
			return err
		}
	}

	b.logger.Info("event bus closed")
	return nil
}

var _ domain.EventBus = (*Bus)(nil)
