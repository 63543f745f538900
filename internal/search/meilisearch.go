package search

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"
)

// MeiliEngine — адаптер Engine поверх Meilisearch.
type MeiliEngine struct {
	client *meilisearch.Client
	logger *log.Entry
}

// NewMeiliEngine создаёт движок поверх инстанса Meilisearch.
func NewMeiliEngine(host, apiKey string) *MeiliEngine {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	return &MeiliEngine{
		client: client,
		logger: log.WithField("component", "meilisearch-engine"),
	}
}

// Ping проверяет доступность Meilisearch.
func (e *MeiliEngine) Ping(ctx context.Context) error {
	if _, err := e.client.Health(); err != nil {
		return fmt.Errorf("meilisearch is unavailable: %w", err)
	}
	return nil
}

func (e *MeiliEngine) EnsureIndex(ctx context.Context, indexUID string, settings IndexSettings) error {
	task, err := e.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        indexUID,
		PrimaryKey: settings.PrimaryKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", indexUID, err)
	}
	if _, err := e.client.WaitForTask(task.TaskUID); err != nil {
		// index_already_exists приходит статусом задачи, не ошибкой
		// запроса; схему всё равно обновляем ниже.
		e.logger.WithError(err).WithField("index", indexUID).
			Debug("create index task did not succeed, applying settings anyway")
	}

	searchable := settings.SearchableAttributes
	filterable := settings.FilterableAttributes
	sortable := settings.SortableAttributes
	if _, err := e.client.Index(indexUID).UpdateSettings(&meilisearch.Settings{
		SearchableAttributes: searchable,
		FilterableAttributes: filterable,
		SortableAttributes:   sortable,
	}); err != nil {
		return fmt.Errorf("failed to update settings of index %s: %w", indexUID, err)
	}
	return nil
}

func (e *MeiliEngine) Upsert(ctx context.Context, indexUID string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := e.client.Index(indexUID).AddDocuments(docs); err != nil {
		return fmt.Errorf("failed to upsert documents into %s: %w", indexUID, err)
	}
	return nil
}

func (e *MeiliEngine) Delete(ctx context.Context, indexUID string, id string) error {
	if _, err := e.client.Index(indexUID).DeleteDocument(id); err != nil {
		return fmt.Errorf("failed to delete document %s from %s: %w", id, indexUID, err)
	}
	return nil
}

func (e *MeiliEngine) DeleteAll(ctx context.Context, indexUID string) error {
	if _, err := e.client.Index(indexUID).DeleteAllDocuments(); err != nil {
		return fmt.Errorf("failed to clear index %s: %w", indexUID, err)
	}
	return nil
}

func (e *MeiliEngine) Search(ctx context.Context, indexUID string, query Query) (Result, error) {
	request := &meilisearch.SearchRequest{
		Offset: query.Offset,
		Limit:  query.Limit,
		Sort:   query.Sort,
	}
	if query.Filter != "" {
		request.Filter = query.Filter
	}

	response, err := e.client.Index(indexUID).Search(query.Term, request)
	if err != nil {
		return Result{}, fmt.Errorf("search in index %s failed: %w", indexUID, err)
	}

	hits := make([]Document, 0, len(response.Hits))
	for _, hit := range response.Hits {
		if doc, ok := hit.(map[string]any); ok {
			hits = append(hits, Document(doc))
		}
	}
	return Result{
		Hits:           hits,
		EstimatedTotal: response.EstimatedTotalHits,
	}, nil
}

var _ Engine = (*MeiliEngine)(nil)
