package domain

import "time"

// OfferRepository описывает требования к хранилищу офферов.
type OfferRepository interface {
	// Create сохраняет новый оффер. Возвращает ошибку, если запись с таким ID уже существует.
	Create(offer Offer) error
	// Get возвращает оффер по идентификатору или ErrOfferNotFound, если его нет.
	Get(id string) (Offer, error)
	// List возвращает офферы, отсортированные по дате создания (новые первыми).
	List(limit int) ([]Offer, error)
	// Save применяет обновления к офферу с учётом optimistic locking.
	Save(offer Offer) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Для заказа с OfferID действует
	// ограничение уникальности: второй заказ от того же оффера
	// отклоняется с ErrDuplicateSource.
	Create(order Order) error
	Get(id string) (Order, error)
	// GetByOffer возвращает заказ, созданный из указанного оффера.
	GetByOffer(offerID string) (Order, error)
	List(limit int) ([]Order, error)
	Save(order Order) error
}

// DeliveryRepository описывает требования к хранилищу поставок.
type DeliveryRepository interface {
	// Create сохраняет новую поставку; на OrderID действует ограничение
	// уникальности, как у заказов.
	Create(delivery Delivery) error
	Get(id string) (Delivery, error)
	GetByOrder(orderID string) (Delivery, error)
	List(limit int) ([]Delivery, error)
	Save(delivery Delivery) error
}

// InvoiceRepository описывает требования к хранилищу счетов.
type InvoiceRepository interface {
	// Create сохраняет новый счёт; на DeliveryID действует ограничение
	// уникальности, как у заказов.
	Create(invoice Invoice) error
	Get(id string) (Invoice, error)
	GetByDelivery(deliveryID string) (Invoice, error)
	List(limit int) ([]Invoice, error)
	Save(invoice Invoice) error
}

// EventRepository — append-only хранилище доменных событий.
// Append никогда не перезаписывает существующие записи; единственная
// допустимая мутация — MarkPublished, которым пользуется outbox relay.
type EventRepository interface {
	// Append сохраняет событие и возвращает его с заполненным ID.
	Append(event DomainEvent) (DomainEvent, error)
	// Get возвращает событие по идентификатору.
	Get(id string) (DomainEvent, error)
	// ListByAggregate возвращает события агрегата в порядке возникновения.
	ListByAggregate(aggregateID string) ([]DomainEvent, error)
	// PullUnpublished возвращает до limit неопубликованных событий,
	// старые первыми.
	PullUnpublished(limit int) ([]DomainEvent, error)
	// MarkPublished выставляет флаг публикации после подтверждённой
	// отправки на шину.
	MarkPublished(id string) error
	// Stats возвращает состояние backlog неопубликованных событий.
	Stats() (EventBacklogStats, error)
}

// EventBacklogStats описывает текущее состояние backlog неопубликованных событий.
type EventBacklogStats struct {
	UnpublishedCount    int
	OldestUnpublishedAt time.Time
}
