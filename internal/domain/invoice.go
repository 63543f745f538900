package domain

import "time"

// InvoiceStatus описывает жизненный цикл счёта.
type InvoiceStatus string

const (
	// InvoiceStatusDraft — счёт создан, но не выставлен.
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusSent — счёт выставлен контрагенту.
	InvoiceStatusSent InvoiceStatus = "sent"
	// InvoiceStatusPaid — счёт оплачен.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusOverdue — срок оплаты истёк.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	// InvoiceStatusCancelled — счёт аннулирован.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Invoice агрегирует состояние счёта. DeliveryID — опциональная обратная
// ссылка на поставку-источник.
type Invoice struct {
	ID           string
	Number       string
	DeliveryID   string
	CompanyID    string
	CompanyName  string
	CompanyEmail string
	Status       InvoiceStatus
	Currency     string
	TotalMinor   int64
	DueDate      time.Time
	Notes        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateInvariants проверяет базовые инварианты счёта.
func (i *Invoice) ValidateInvariants() []error {
	var errs []error

	if i.CompanyID == "" {
		errs = append(errs, ErrCompanyRequired)
	}
	if i.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if i.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	return errs
}
