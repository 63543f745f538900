package search

import "context"

// Document — плоский JSON-документ read-модели. Даты хранятся как
// epoch millis, чтобы по ним работали фильтры и сортировка.
type Document map[string]any

// IndexSettings описывает схему индекса.
type IndexSettings struct {
	PrimaryKey           string
	SearchableAttributes []string
	FilterableAttributes []string
	SortableAttributes   []string
}

// Query — поисковый запрос к одному индексу.
type Query struct {
	Term   string
	Filter string
	Sort   []string
	Offset int64
	Limit  int64
}

// Result — страница результатов поиска.
type Result struct {
	Hits           []Document
	EstimatedTotal int64
}

// Engine — порт полнотекстового поиска. Реализации: Meilisearch для
// production и in-memory движок для тестов.
type Engine interface {
	// EnsureIndex создаёт индекс с заданной схемой; существующий индекс
	// приводится к схеме повторно (операция идемпотентна).
	EnsureIndex(ctx context.Context, indexUID string, settings IndexSettings) error
	// Upsert добавляет или замещает документы по первичному ключу.
	Upsert(ctx context.Context, indexUID string, docs []Document) error
	// Delete удаляет документ по первичному ключу.
	Delete(ctx context.Context, indexUID string, id string) error
	// DeleteAll очищает индекс.
	DeleteAll(ctx context.Context, indexUID string) error
	// Search выполняет запрос к индексу.
	Search(ctx context.Context, indexUID string, query Query) (Result, error)
}
