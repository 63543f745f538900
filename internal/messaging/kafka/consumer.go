package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
)

var busConsumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_bus_consume_total",
	Help: "Total number of consumed bus messages grouped by result.",
}, []string{"result"})

// subscription — долгоживущий consumer group поверх списка топиков.
// Каждое сообщение обрабатывается в собственной failure boundary: ошибка
// или panic обработчика логируется, сообщение помечается обработанным и
// поток продолжается (повторной доставки нет).
type subscription struct {
	consumer sarama.ConsumerGroup
	topics   []string
	handler  domain.EventHandler
	logger   *log.Entry
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newSubscription(brokers []string, group string, topics []string, handler domain.EventHandler) (*subscription, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, group, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	return &subscription{
		consumer: consumer,
		topics:   topics,
		handler:  handler,
		logger: log.WithFields(log.Fields{
			"component": "kafka-subscription",
			"group":     group,
		}),
	}, nil
}

func (s *subscription) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			// Consume вызывается в цикле: при rebalance он завершается.
			if err := s.consumer.Consume(ctx, s.topics, s); err != nil {
				s.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for err := range s.consumer.Errors() {
			s.logger.WithError(err).Error("consumer error")
		}
	}()
}

// Close останавливает подписку и ждёт завершения обработки текущего
// сообщения.
func (s *subscription) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", err)
	}
	s.wg.Wait()
	s.logger.Info("subscription stopped")
	return nil
}

// Setup вызывается при старте consumer session.
func (s *subscription) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (s *subscription) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition.
func (s *subscription) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			s.handleMessage(session.Context(), message)

			// Сообщение помечается независимо от результата обработки:
			// повторной доставки нет, неудачная реакция остаётся в логах.
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (s *subscription) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	defer func() {
		if r := recover(); r != nil {
			busConsumeTotal.WithLabelValues("panic").Inc()
			s.logger.WithFields(log.Fields{
				"topic":  message.Topic,
				"offset": message.Offset,
				"panic":  r,
			}).Error("event handler panicked")
		}
	}()

	env, err := ParseEnvelope(message.Value)
	if err != nil {
		busConsumeTotal.WithLabelValues("invalid").Inc()
		s.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("skipping malformed event envelope")
		return
	}

	// Payload валидируется до передачи обработчику. Незарегистрированный
	// тип события пропускается как есть: обработчики подписаны на
	// закрытый список subject'ов и сами решают, что им интересно.
	if _, err := domain.DecodePayload(env.EventType, env.Payload); err != nil && !errors.Is(err, domain.ErrUnknownEventType) {
		busConsumeTotal.WithLabelValues("invalid_payload").Inc()
		s.logger.WithError(err).WithFields(log.Fields{
			"topic":      message.Topic,
			"offset":     message.Offset,
			"event_type": env.EventType,
		}).Warn("skipping event with invalid payload")
		return
	}

	if err := s.handler(ctx, env.DomainEvent()); err != nil {
		busConsumeTotal.WithLabelValues("handler_error").Inc()
		s.logger.WithError(err).WithFields(log.Fields{
			"topic":        message.Topic,
			"offset":       message.Offset,
			"event_type":   env.EventType,
			"aggregate_id": env.AggregateID,
		}).Error("event handler failed")
		return
	}

	busConsumeTotal.WithLabelValues("ok").Inc()
}

var _ sarama.ConsumerGroupHandler = (*subscription)(nil)
