package postgres

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/darioristic/crmflow/internal/domain"
)

// Интеграционные тесты запускаются только при наличии доступного PostgreSQL.
func openStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("CRM_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("CRM_POSTGRES_TEST_DSN is not set, skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	require.NoError(t, err, "open postgres")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.MigrateUp(ctx), "migrate up")
	for _, table := range []string{"domain_events", "invoices", "deliveries", "orders", "offers"} {
		_, err := store.DB().ExecContext(ctx, "TRUNCATE TABLE "+table)
		require.NoError(t, err, "truncate %s", table)
	}

	return store
}

func TestEventRepository_Integration_AppendPullMark(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewEventRepository(store)

	stored, err := repo.Append(domain.DomainEvent{
		EventType:     domain.EventOfferAccepted,
		AggregateID:   "offer-1",
		AggregateType: domain.AggregateOffer,
		Payload:       json.RawMessage(`{"companyId":"company-1","totalMinor":100000}`),
	})
	require.NoError(t, err, "append")

	pending, err := repo.PullUnpublished(10)
	require.NoError(t, err, "pull")
	require.Len(t, pending, 1)
	require.Equal(t, stored.ID, pending[0].ID)

	require.NoError(t, repo.MarkPublished(stored.ID), "mark published")

	pending, err = repo.PullUnpublished(10)
	require.NoError(t, err)
	require.Empty(t, pending, "expected empty backlog")

	reloaded, err := repo.Get(stored.ID)
	require.NoError(t, err, "get")
	require.True(t, reloaded.Published, "expected published flag to be set")
	require.False(t, reloaded.PublishedAt.IsZero(), "expected published timestamp to be set")
}

func TestOrderRepository_Integration_DuplicateOffer(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := domain.Order{
		ID:         "order-1",
		Number:     "OR-1",
		OfferID:    "offer-1",
		CompanyID:  "company-1",
		Status:     domain.OrderStatusDraft,
		Currency:   "EUR",
		TotalMinor: 100000,
	}
	require.NoError(t, repo.Create(order), "create")

	order.ID = "order-2"
	order.Number = "OR-2"
	require.ErrorIs(t, repo.Create(order), domain.ErrDuplicateSource)
}
