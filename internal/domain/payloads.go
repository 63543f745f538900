package domain

import (
	"encoding/json"
	"fmt"
)

// Payload — типизированное содержимое события. Один формат на вид события;
// подписчик обязан декодировать и валидировать payload до использования,
// чтобы расхождение форматов между издателем и подписчиком всплывало сразу.
type Payload interface {
	Validate() error
}

// OfferPayload — payload событий offer.*.
type OfferPayload struct {
	Number     string `json:"number"`
	CompanyID  string `json:"companyId"`
	Status     string `json:"status"`
	Currency   string `json:"currency"`
	TotalMinor int64  `json:"totalMinor"`
}

func (p OfferPayload) Validate() error {
	if p.CompanyID == "" {
		return ErrCompanyRequired
	}
	if p.TotalMinor < 0 {
		return ErrTotalNegative
	}
	return nil
}

// OrderPayload — payload событий order.*.
type OrderPayload struct {
	Number     string `json:"number"`
	OfferID    string `json:"offerId,omitempty"`
	CompanyID  string `json:"companyId"`
	Status     string `json:"status"`
	Currency   string `json:"currency"`
	TotalMinor int64  `json:"totalMinor"`
}

func (p OrderPayload) Validate() error {
	if p.CompanyID == "" {
		return ErrCompanyRequired
	}
	if p.TotalMinor < 0 {
		return ErrTotalNegative
	}
	return nil
}

// DeliveryPayload — payload событий delivery.*.
type DeliveryPayload struct {
	Number       string `json:"number"`
	OrderID      string `json:"orderId"`
	CompanyID    string `json:"companyId"`
	Status       string `json:"status"`
	DeliveryDate int64  `json:"deliveryDate,omitempty"`
	SignedAt     int64  `json:"signedAt,omitempty"`
}

func (p DeliveryPayload) Validate() error {
	if p.OrderID == "" {
		return ErrSourceRequired
	}
	if p.CompanyID == "" {
		return ErrCompanyRequired
	}
	return nil
}

// InvoicePayload — payload событий invoice.*.
type InvoicePayload struct {
	Number     string `json:"number"`
	DeliveryID string `json:"deliveryId,omitempty"`
	CompanyID  string `json:"companyId"`
	Status     string `json:"status"`
	Currency   string `json:"currency"`
	TotalMinor int64  `json:"totalMinor"`
	DueDate    int64  `json:"dueDate,omitempty"`
}

func (p InvoicePayload) Validate() error {
	if p.CompanyID == "" {
		return ErrCompanyRequired
	}
	if p.TotalMinor < 0 {
		return ErrTotalNegative
	}
	return nil
}

// payloadFactories сопоставляет каждому известному типу события фабрику
// пустого payload нужной формы.
var payloadFactories = map[string]func() Payload{
	EventOfferCreated:  func() Payload { return &OfferPayload{} },
	EventOfferSent:     func() Payload { return &OfferPayload{} },
	EventOfferAccepted: func() Payload { return &OfferPayload{} },
	EventOfferRejected: func() Payload { return &OfferPayload{} },
	EventOfferExpired:  func() Payload { return &OfferPayload{} },

	EventOrderCreated:   func() Payload { return &OrderPayload{} },
	EventOrderConfirmed: func() Payload { return &OrderPayload{} },
	EventOrderFulfilled: func() Payload { return &OrderPayload{} },
	EventOrderCancelled: func() Payload { return &OrderPayload{} },

	EventDeliveryCreated:   func() Payload { return &DeliveryPayload{} },
	EventDeliveryDelivered: func() Payload { return &DeliveryPayload{} },
	EventDeliverySigned:    func() Payload { return &DeliveryPayload{} },

	EventInvoiceCreated:   func() Payload { return &InvoicePayload{} },
	EventInvoiceSent:      func() Payload { return &InvoicePayload{} },
	EventInvoicePaid:      func() Payload { return &InvoicePayload{} },
	EventInvoiceOverdue:   func() Payload { return &InvoicePayload{} },
	EventInvoiceCancelled: func() Payload { return &InvoicePayload{} },
}

// DecodePayload декодирует и валидирует payload события по его типу.
// Для неизвестного типа возвращается ErrUnknownEventType.
func DecodePayload(eventType string, raw json.RawMessage) (Payload, error) {
	factory, ok := payloadFactories[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	payload := factory()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s payload: %w", eventType, err)
	}

	return payload, nil
}

// KnownEventTypes возвращает все зарегистрированные типы событий.
func KnownEventTypes() []string {
	types := make([]string, 0, len(payloadFactories))
	for eventType := range payloadFactories {
		types = append(types, eventType)
	}
	return types
}
