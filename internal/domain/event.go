package domain

import (
	"encoding/json"
	"time"
)

// AggregateType перечисляет типы агрегатов, по которым публикуются события.
type AggregateType string

const (
	AggregateOffer        AggregateType = "offer"
	AggregateOrder        AggregateType = "order"
	AggregateDelivery     AggregateType = "delivery"
	AggregateInvoice      AggregateType = "invoice"
	AggregateCompany      AggregateType = "company"
	AggregateContact      AggregateType = "contact"
	AggregateRelationship AggregateType = "relationship"
)

// Известные типы событий. Тип события совпадает с subject на шине:
// "<aggregateType>.<verb>".
const (
	EventOfferCreated  = "offer.created"
	EventOfferSent     = "offer.sent"
	EventOfferAccepted = "offer.accepted"
	EventOfferRejected = "offer.rejected"
	EventOfferExpired  = "offer.expired"

	EventOrderCreated   = "order.created"
	EventOrderConfirmed = "order.confirmed"
	EventOrderFulfilled = "order.fulfilled"
	EventOrderCancelled = "order.cancelled"

	EventDeliveryCreated   = "delivery.created"
	EventDeliveryDelivered = "delivery.delivered"
	EventDeliverySigned    = "delivery.signed"

	EventInvoiceCreated   = "invoice.created"
	EventInvoiceSent      = "invoice.sent"
	EventInvoicePaid      = "invoice.paid"
	EventInvoiceOverdue   = "invoice.overdue"
	EventInvoiceCancelled = "invoice.cancelled"
)

// DomainEvent — неизменяемая запись о факте в системе. Одна строка на
// каждую попытку публикации; строки никогда не изменяются и не удаляются,
// кроме служебного флага Published, который выставляет outbox relay.
type DomainEvent struct {
	ID            string
	EventType     string
	AggregateID   string
	AggregateType AggregateType
	Payload       json.RawMessage
	Metadata      json.RawMessage
	OccurredAt    time.Time
	Published     bool
	PublishedAt   time.Time
}

// Validate проверяет обязательные поля события перед записью.
func (e DomainEvent) Validate() []error {
	var errs []error

	if e.EventType == "" {
		errs = append(errs, ErrEventTypeRequired)
	}
	if e.AggregateID == "" {
		errs = append(errs, ErrAggregateIDRequired)
	}
	if e.AggregateType == "" {
		errs = append(errs, ErrAggregateTypeRequired)
	}

	return errs
}
