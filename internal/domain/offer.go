package domain

import "time"

// OfferStatus описывает жизненный цикл коммерческого предложения.
type OfferStatus string

const (
	// OfferStatusDraft — оффер создан, но ещё не отправлен контрагенту.
	OfferStatusDraft OfferStatus = "draft"
	// OfferStatusSent — оффер отправлен и ожидает решения.
	OfferStatusSent OfferStatus = "sent"
	// OfferStatusAccepted — контрагент принял оффер; из него создаётся заказ.
	OfferStatusAccepted OfferStatus = "accepted"
	// OfferStatusRejected — контрагент отклонил оффер.
	OfferStatusRejected OfferStatus = "rejected"
	// OfferStatusExpired — срок действия оффера истёк без решения.
	OfferStatusExpired OfferStatus = "expired"
)

// Offer агрегирует состояние коммерческого предложения вместе с
// денормализованными display-полями контрагента для read-моделей.
type Offer struct {
	ID           string
	Number       string
	CompanyID    string
	CompanyName  string
	CompanyEmail string
	ContactName  string
	Status       OfferStatus
	Currency     string
	TotalMinor   int64
	Notes        string
	ValidUntil   time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ValidateInvariants проверяет базовые инварианты оффера.
func (o *Offer) ValidateInvariants() []error {
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
