package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusDraft — заказ создан (обычно сагой из принятого оффера).
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusConfirmed — заказ подтверждён и взят в работу.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusFulfilled — заказ исполнен; из него создаётся поставка.
	OrderStatusFulfilled OrderStatus = "fulfilled"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order агрегирует состояние заказа. OfferID — опциональная обратная ссылка
// на оффер-источник; по ней репозиторий отсекает дубликаты от повторной
// доставки триггера саги.
type Order struct {
	ID           string
	Number       string
	OfferID      string
	CompanyID    string
	CompanyName  string
	CompanyEmail string
	Status       OrderStatus
	Currency     string
	TotalMinor   int64
	Notes        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CompanyID == "" {
		errs = append(errs, ErrCompanyRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	return errs
}
