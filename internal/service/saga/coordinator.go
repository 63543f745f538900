package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/darioristic/crmflow/internal/domain"
)

const (
	// deliveryLeadTime — плановая дата поставки относительно исполнения заказа.
	deliveryLeadTime = 48 * time.Hour
	// invoiceDueTerm — срок оплаты счёта относительно подписания накладной.
	invoiceDueTerm = 720 * time.Hour
)

var sagaStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crm_saga_steps_total",
	Help: "Total number of saga steps grouped by step and result.",
}, []string{"step", "result"})

// Coordinator продвигает документооборот по цепочке
// оффер → заказ → поставка → счёт, реагируя на события шины.
// Каждый шаг идемпотентен: повторная доставка триггера упирается в
// ограничение уникальности по ссылке на источник и поглощается.
// Компенсаций нет: неудавшийся шаг логируется, цепочка для этого
// агрегата останавливается.
type Coordinator struct {
	offers     domain.OfferRepository
	orders     domain.OrderRepository
	deliveries domain.DeliveryRepository
	invoices   domain.InvoiceRepository
	publisher  domain.EventPublisher
	logger     *log.Entry
	now        func() time.Time
}

// Options задаёт параметры координатора.
type Options struct {
	Logger *log.Entry
	Now    func() time.Time
}

// Option настраивает Coordinator.
type Option func(*Options)

// WithLogger задаёт logger координатора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// NewCoordinator создаёт координатор саги.
func NewCoordinator(
	offers domain.OfferRepository,
	orders domain.OrderRepository,
	deliveries domain.DeliveryRepository,
	invoices domain.InvoiceRepository,
	publisher domain.EventPublisher,
	options ...Option,
) *Coordinator {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "saga-coordinator")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Coordinator{
		offers:     offers,
		orders:     orders,
		deliveries: deliveries,
		invoices:   invoices,
		publisher:  publisher,
		logger:     logger,
		now:        now,
	}
}

// Register подписывает шаги саги на шину. Каждый шаг получает собственную
// consumer group, чтобы rebalance одного шага не задевал остальные.
func (c *Coordinator) Register(ctx context.Context, bus domain.EventBus) ([]domain.BusSubscription, error) {
	steps := []struct {
		subject string
		group   string
		handler domain.EventHandler
	}{
		{domain.EventOfferAccepted, "saga-offer-accepted", c.HandleOfferAccepted},
		{domain.EventOrderFulfilled, "saga-order-fulfilled", c.HandleOrderFulfilled},
		{domain.EventDeliverySigned, "saga-delivery-signed", c.HandleDeliverySigned},
	}

	subs := make([]domain.BusSubscription, 0, len(steps))
	for _, step := range steps {
		sub, err := bus.Subscribe(ctx, step.group, step.subject, step.handler)
		if err != nil {
			for _, opened := range subs {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("failed to subscribe saga step %s: %w", step.subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// HandleOfferAccepted создаёт заказ из принятого оффера.
func (c *Coordinator) HandleOfferAccepted(ctx context.Context, event domain.DomainEvent) error {
	offer, err := c.offers.Get(event.AggregateID)
	if err != nil {
		sagaStepsTotal.WithLabelValues("create_order", "source_missing").Inc()
		return fmt.Errorf("failed to load offer %s: %w", event.AggregateID, err)
	}
	// Статус перепроверяется по состоянию агрегата, а не по событию:
	// между публикацией и доставкой оффер мог быть отозван.
	if offer.Status != domain.OfferStatusAccepted {
		sagaStepsTotal.WithLabelValues("create_order", "stale_trigger").Inc()
		c.logger.WithFields(log.Fields{
			"offer_id": offer.ID,
			"status":   offer.Status,
		}).Warn("skipping order creation: offer is no longer accepted")
		return fmt.Errorf("%w: offer %s is %s", domain.ErrOfferNotAccepted, offer.ID, offer.Status)
	}

	order := domain.Order{
		ID:           uuid.NewString(),
		Number:       deriveNumber("ORD", offer.Number),
		OfferID:      offer.ID,
		CompanyID:    offer.CompanyID,
		CompanyName:  offer.CompanyName,
		CompanyEmail: offer.CompanyEmail,
		Status:       domain.OrderStatusDraft,
		Currency:     offer.Currency,
		TotalMinor:   offer.TotalMinor,
		CreatedAt:    c.now(),
		UpdatedAt:    c.now(),
	}

	if err := c.orders.Create(order); err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			sagaStepsTotal.WithLabelValues("create_order", "duplicate").Inc()
			c.logger.WithField("offer_id", offer.ID).
				Info("order already exists for offer, skipping duplicate trigger")
			return nil
		}
		sagaStepsTotal.WithLabelValues("create_order", "error").Inc()
		return fmt.Errorf("failed to create order from offer %s: %w", offer.ID, err)
	}

	sagaStepsTotal.WithLabelValues("create_order", "ok").Inc()
	c.logger.WithFields(log.Fields{
		"offer_id": offer.ID,
		"order_id": order.ID,
	}).Info("order created from accepted offer")

	_, err = c.publisher.PublishAndStore(
		domain.EventOrderCreated,
		domain.EventOrderCreated,
		order.ID,
		domain.AggregateOrder,
		domain.OrderPayload{
			Number:     order.Number,
			OfferID:    order.OfferID,
			CompanyID:  order.CompanyID,
			Status:     string(order.Status),
			Currency:   order.Currency,
			TotalMinor: order.TotalMinor,
		},
		causationMetadata(event),
	)
	if err != nil {
		return fmt.Errorf("failed to publish order.created for %s: %w", order.ID, err)
	}
	return nil
}

// HandleOrderFulfilled создаёт поставку из исполненного заказа.
func (c *Coordinator) HandleOrderFulfilled(ctx context.Context, event domain.DomainEvent) error {
	order, err := c.orders.Get(event.AggregateID)
	if err != nil {
		sagaStepsTotal.WithLabelValues("create_delivery", "source_missing").Inc()
		return fmt.Errorf("failed to load order %s: %w", event.AggregateID, err)
	}
	if order.Status != domain.OrderStatusFulfilled {
		sagaStepsTotal.WithLabelValues("create_delivery", "stale_trigger").Inc()
		c.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Warn("skipping delivery creation: order is not fulfilled")
		return fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotFulfilled, order.ID, order.Status)
	}

	delivery := domain.Delivery{
		ID:           uuid.NewString(),
		Number:       deriveNumber("DLV", order.Number),
		OrderID:      order.ID,
		CompanyID:    order.CompanyID,
		CompanyName:  order.CompanyName,
		CompanyEmail: order.CompanyEmail,
		Status:       domain.DeliveryStatusPrepared,
		DeliveryDate: c.now().Add(deliveryLeadTime),
		CreatedAt:    c.now(),
		UpdatedAt:    c.now(),
	}

	if err := c.deliveries.Create(delivery); err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			sagaStepsTotal.WithLabelValues("create_delivery", "duplicate").Inc()
			c.logger.WithField("order_id", order.ID).
				Info("delivery already exists for order, skipping duplicate trigger")
			return nil
		}
		sagaStepsTotal.WithLabelValues("create_delivery", "error").Inc()
		return fmt.Errorf("failed to create delivery from order %s: %w", order.ID, err)
	}

	sagaStepsTotal.WithLabelValues("create_delivery", "ok").Inc()
	c.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"delivery_id": delivery.ID,
	}).Info("delivery created from fulfilled order")

	_, err = c.publisher.PublishAndStore(
		domain.EventDeliveryCreated,
		domain.EventDeliveryCreated,
		delivery.ID,
		domain.AggregateDelivery,
		domain.DeliveryPayload{
			Number:       delivery.Number,
			OrderID:      delivery.OrderID,
			CompanyID:    delivery.CompanyID,
			Status:       string(delivery.Status),
			DeliveryDate: delivery.DeliveryDate.UnixMilli(),
		},
		causationMetadata(event),
	)
	if err != nil {
		return fmt.Errorf("failed to publish delivery.created for %s: %w", delivery.ID, err)
	}
	return nil
}

// HandleDeliverySigned создаёт счёт из подписанной поставки.
func (c *Coordinator) HandleDeliverySigned(ctx context.Context, event domain.DomainEvent) error {
	delivery, err := c.deliveries.Get(event.AggregateID)
	if err != nil {
		sagaStepsTotal.WithLabelValues("create_invoice", "source_missing").Inc()
		return fmt.Errorf("failed to load delivery %s: %w", event.AggregateID, err)
	}
	if delivery.Status != domain.DeliveryStatusSigned {
		sagaStepsTotal.WithLabelValues("create_invoice", "stale_trigger").Inc()
		c.logger.WithFields(log.Fields{
			"delivery_id": delivery.ID,
			"status":      delivery.Status,
		}).Warn("skipping invoice creation: delivery is not signed")
		return fmt.Errorf("%w: delivery %s is %s", domain.ErrDeliveryNotSigned, delivery.ID, delivery.Status)
	}

	// Сумма счёта берётся из заказа-источника: поставка её не несёт.
	order, err := c.orders.Get(delivery.OrderID)
	if err != nil {
		sagaStepsTotal.WithLabelValues("create_invoice", "source_missing").Inc()
		return fmt.Errorf("failed to load order %s for invoice: %w", delivery.OrderID, err)
	}

	invoice := domain.Invoice{
		ID:           uuid.NewString(),
		Number:       deriveNumber("INV", delivery.Number),
		DeliveryID:   delivery.ID,
		CompanyID:    delivery.CompanyID,
		CompanyName:  delivery.CompanyName,
		CompanyEmail: delivery.CompanyEmail,
		Status:       domain.InvoiceStatusDraft,
		Currency:     order.Currency,
		TotalMinor:   order.TotalMinor,
		DueDate:      c.now().Add(invoiceDueTerm),
		CreatedAt:    c.now(),
		UpdatedAt:    c.now(),
	}

	if err := c.invoices.Create(invoice); err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			sagaStepsTotal.WithLabelValues("create_invoice", "duplicate").Inc()
			c.logger.WithField("delivery_id", delivery.ID).
				Info("invoice already exists for delivery, skipping duplicate trigger")
			return nil
		}
		sagaStepsTotal.WithLabelValues("create_invoice", "error").Inc()
		return fmt.Errorf("failed to create invoice from delivery %s: %w", delivery.ID, err)
	}

	sagaStepsTotal.WithLabelValues("create_invoice", "ok").Inc()
	c.logger.WithFields(log.Fields{
		"delivery_id": delivery.ID,
		"invoice_id":  invoice.ID,
	}).Info("invoice created from signed delivery")

	_, err = c.publisher.PublishAndStore(
		domain.EventInvoiceCreated,
		domain.EventInvoiceCreated,
		invoice.ID,
		domain.AggregateInvoice,
		domain.InvoicePayload{
			Number:     invoice.Number,
			DeliveryID: invoice.DeliveryID,
			CompanyID:  invoice.CompanyID,
			Status:     string(invoice.Status),
			Currency:   invoice.Currency,
			TotalMinor: invoice.TotalMinor,
			DueDate:    invoice.DueDate.UnixMilli(),
		},
		causationMetadata(event),
	)
	if err != nil {
		return fmt.Errorf("failed to publish invoice.created for %s: %w", invoice.ID, err)
	}
	return nil
}

// deriveNumber строит номер производного документа из номера источника:
// "OF-2026-017" → "ORD-2026-017". Источники без префикса получают суффикс
// из случайного идентификатора.
func deriveNumber(prefix, sourceNumber string) string {
	if _, suffix, ok := strings.Cut(sourceNumber, "-"); ok && suffix != "" {
		return prefix + "-" + suffix
	}
	return prefix + "-" + uuid.NewString()[:8]
}

func causationMetadata(event domain.DomainEvent) map[string]string {
	meta := map[string]string{"causationEventType": event.EventType}
	if event.ID != "" {
		meta["causationEventId"] = event.ID
	}
	return meta
}
