package domain

import "time"

// DeliveryStatus описывает жизненный цикл поставки.
type DeliveryStatus string

const (
	// DeliveryStatusPrepared — поставка сформирована и ожидает отгрузки.
	DeliveryStatusPrepared DeliveryStatus = "prepared"
	// DeliveryStatusDelivered — товар передан контрагенту.
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	// DeliveryStatusSigned — накладная подписана; из поставки создаётся счёт.
	DeliveryStatusSigned DeliveryStatus = "signed"
)

// Delivery агрегирует состояние поставки. OrderID — обязательная ссылка на
// заказ-источник.
type Delivery struct {
	ID           string
	Number       string
	OrderID      string
	CompanyID    string
	CompanyName  string
	CompanyEmail string
	Status       DeliveryStatus
	DeliveryDate time.Time
	SignedAt     time.Time
	Notes        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateInvariants проверяет базовые инварианты поставки.
func (d *Delivery) ValidateInvariants() []error {
	var errs []error

	if d.OrderID == "" {
		errs = append(errs, ErrSourceRequired)
	}
	if d.CompanyID == "" {
		errs = append(errs, ErrCompanyRequired)
	}

	return errs
}
