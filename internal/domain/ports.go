package domain

import "context"

// EventHandler обрабатывает одно доставленное событие. Ошибка обработчика
// логируется транспортом и не приводит к повторной доставке.
type EventHandler func(ctx context.Context, event DomainEvent) error

// BusSubscription — живая подписка на поток событий.
type BusSubscription interface {
	// Close останавливает подписку: дорабатывает текущее сообщение,
	// новых не принимает.
	Close() error
}

// EventBus описывает транспорт pub/sub с доставкой «не более одного раза
// за попытку» и без гарантий порядка между subject'ами.
type EventBus interface {
	// Publish отправляет событие в subject. Best-effort: при недоступном
	// транспорте сообщение отбрасывается с предупреждением в логе, а
	// ошибка возвращается только для учёта (например, outbox relay по
	// ней решает оставить событие в backlog).
	Publish(subject string, event DomainEvent) error
	// Subscribe создаёт долгоживущую подписку на subject-паттерн
	// ("offer.accepted" или "offer.*"); handler вызывается для каждого
	// сообщения в отдельной failure boundary.
	Subscribe(ctx context.Context, group, pattern string, handler EventHandler) (BusSubscription, error)
}

// EventPublisher — составная операция «записать, затем опубликовать».
type EventPublisher interface {
	// PublishAndStore сохраняет событие в журнал и отправляет его на
	// шину. Ошибка возвращается только при сбое записи; сбой публикации
	// после успешной записи не виден вызывающему.
	PublishAndStore(subject, eventType, aggregateID string, aggregateType AggregateType, payload, metadata any) (DomainEvent, error)
}
