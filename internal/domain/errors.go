package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора компании-контрагента.
	ErrCompanyRequired = errors.New("company_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отрицательной суммы документа.
	ErrTotalNegative = errors.New("total_minor must be non-negative")
	// Ошибка отсутствующего ссылочного документа-источника.
	ErrSourceRequired = errors.New("source document reference is required")
	// Ошибка отсутствующего типа события.
	ErrEventTypeRequired = errors.New("event_type is required")
	// Ошибка отсутствующего идентификатора агрегата в событии.
	ErrAggregateIDRequired = errors.New("aggregate_id is required")
	// Ошибка отсутствующего типа агрегата в событии.
	ErrAggregateTypeRequired = errors.New("aggregate_type is required")

	// ErrOfferNotFound возвращается, если оффер не найден в репозитории.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDeliveryNotFound возвращается, если поставка не найдена в репозитории.
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrInvoiceNotFound возвращается, если счёт не найден в репозитории.
	ErrInvoiceNotFound = errors.New("invoice not found")
	// ErrEventNotFound возвращается, если событие не найдено в хранилище.
	ErrEventNotFound = errors.New("domain event not found")

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("aggregate version conflict")
	// ErrDuplicateSource возвращается при попытке создать второй производный
	// документ от того же источника (повторная доставка триггера саги).
	ErrDuplicateSource = errors.New("derived document for this source already exists")

	// ErrOfferNotAccepted — оффер не в статусе accepted, заказ создавать нельзя.
	ErrOfferNotAccepted = errors.New("offer is not in accepted status")
	// ErrOrderNotFulfilled — заказ не в статусе fulfilled, поставку создавать нельзя.
	ErrOrderNotFulfilled = errors.New("order is not in fulfilled status")
	// ErrDeliveryNotSigned — поставка не подписана, счёт создавать нельзя.
	ErrDeliveryNotSigned = errors.New("delivery is not in signed status")

	// ErrUnknownEventType возвращается декодером payload для неизвестного типа события.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrEventPublish — ошибка при публикации события на шину.
	ErrEventPublish = errors.New("event publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsDuplicateSource проверяет, является ли ошибка дубликатом производного документа.
func IsDuplicateSource(err error) bool {
	return errors.Is(err, ErrDuplicateSource)
}
