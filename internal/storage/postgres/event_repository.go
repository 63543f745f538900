package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/darioristic/crmflow/internal/domain"
)

const opTimeout = 5 * time.Second

type eventRepository struct {
	db *sql.DB
}

// NewEventRepository создаёт PostgreSQL-реализацию EventRepository.
func NewEventRepository(store *Store) domain.EventRepository {
	return &eventRepository{db: store.DB()}
}

func (r *eventRepository) Append(event domain.DomainEvent) (domain.DomainEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	metadata := event.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domain_events (
			id, event_type, aggregate_id, aggregate_type, payload, metadata,
			occurred_at, published
		) VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE)
	`,
		event.ID, event.EventType, event.AggregateID, string(event.AggregateType),
		payload, metadata, event.OccurredAt,
	)
	if err != nil {
		return domain.DomainEvent{}, fmt.Errorf("append domain event: %w", err)
	}

	return event, nil
}

func (r *eventRepository) Get(id string) (domain.DomainEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_type, aggregate_id, aggregate_type, payload, metadata,
		       occurred_at, published, published_at
		FROM domain_events
		WHERE id = $1
	`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DomainEvent{}, domain.ErrEventNotFound
		}
		return domain.DomainEvent{}, fmt.Errorf("select domain event: %w", err)
	}
	return event, nil
}

func (r *eventRepository) ListByAggregate(aggregateID string) ([]domain.DomainEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, aggregate_type, payload, metadata,
		       occurred_at, published, published_at
		FROM domain_events
		WHERE aggregate_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list domain events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (r *eventRepository) PullUnpublished(limit int) ([]domain.DomainEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, aggregate_type, payload, metadata,
		       occurred_at, published, published_at
		FROM domain_events
		WHERE NOT published
		ORDER BY occurred_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull unpublished events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func (r *eventRepository) MarkPublished(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE domain_events
		SET published = TRUE, published_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark event as published: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for event publish mark: %w", err)
	}
	if affected == 0 {
		return domain.ErrEventNotFound
	}

	return nil
}

func (r *eventRepository) Stats() (domain.EventBacklogStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.EventBacklogStats
		oldest sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(occurred_at)
		FROM domain_events
		WHERE NOT published
	`).Scan(&stats.UnpublishedCount, &oldest); err != nil {
		return domain.EventBacklogStats{}, fmt.Errorf("event backlog stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestUnpublishedAt = oldest.Time.UTC()
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.DomainEvent, error) {
	var (
		event         domain.DomainEvent
		aggregateType string
		publishedAt   sql.NullTime
	)
	if err := row.Scan(
		&event.ID, &event.EventType, &event.AggregateID, &aggregateType,
		&event.Payload, &event.Metadata, &event.OccurredAt, &event.Published, &publishedAt,
	); err != nil {
		return domain.DomainEvent{}, err
	}
	event.AggregateType = domain.AggregateType(aggregateType)
	if publishedAt.Valid {
		event.PublishedAt = publishedAt.Time.UTC()
	}
	return event, nil
}

func collectEvents(rows *sql.Rows) ([]domain.DomainEvent, error) {
	events := make([]domain.DomainEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.EventRepository = (*eventRepository)(nil)
