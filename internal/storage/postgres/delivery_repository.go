package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

type deliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository создаёт PostgreSQL-реализацию DeliveryRepository.
func NewDeliveryRepository(store *Store) domain.DeliveryRepository {
	return &deliveryRepository{db: store.DB()}
}

func (r *deliveryRepository) Create(delivery domain.Delivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}
	if delivery.UpdatedAt.IsZero() {
		delivery.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, number, order_id, company_id, company_name, company_email,
			status, delivery_date, signed_at, notes, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		delivery.ID, delivery.Number, delivery.OrderID, delivery.CompanyID,
		delivery.CompanyName, delivery.CompanyEmail, string(delivery.Status),
		nullTime(delivery.DeliveryDate), nullTime(delivery.SignedAt), delivery.Notes,
		delivery.Version, delivery.CreatedAt, delivery.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if _, getErr := r.GetByOrder(delivery.OrderID); getErr == nil {
				return domain.ErrDuplicateSource
			}
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

func (r *deliveryRepository) Get(id string) (domain.Delivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	delivery, err := scanDelivery(r.db.QueryRowContext(ctx, deliverySelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Delivery{}, domain.ErrDeliveryNotFound
		}
		return domain.Delivery{}, fmt.Errorf("select delivery: %w", err)
	}
	return delivery, nil
}

func (r *deliveryRepository) GetByOrder(orderID string) (domain.Delivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	delivery, err := scanDelivery(r.db.QueryRowContext(ctx, deliverySelect+` WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Delivery{}, domain.ErrDeliveryNotFound
		}
		return domain.Delivery{}, fmt.Errorf("select delivery by order: %w", err)
	}
	return delivery, nil
}

func (r *deliveryRepository) List(limit int) ([]domain.Delivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, deliverySelect+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]domain.Delivery, 0, limit)
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return deliveries, nil
}

func (r *deliveryRepository) Save(delivery domain.Delivery) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE deliveries
		SET number = $2, company_id = $3, company_name = $4, company_email = $5,
		    status = $6, delivery_date = $7, signed_at = $8, notes = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11
	`,
		delivery.ID, delivery.Number, delivery.CompanyID, delivery.CompanyName,
		delivery.CompanyEmail, string(delivery.Status), nullTime(delivery.DeliveryDate),
		nullTime(delivery.SignedAt), delivery.Notes, time.Now().UTC(), delivery.Version,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for delivery update: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(delivery.ID); errors.Is(getErr, domain.ErrDeliveryNotFound) {
			return domain.ErrDeliveryNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

const deliverySelect = `
	SELECT id, number, order_id, company_id, company_name, company_email,
	       status, delivery_date, signed_at, notes, version, created_at, updated_at
	FROM deliveries`

func scanDelivery(row rowScanner) (domain.Delivery, error) {
	var (
		delivery     domain.Delivery
		status       string
		deliveryDate sql.NullTime
		signedAt     sql.NullTime
	)
	if err := row.Scan(
		&delivery.ID, &delivery.Number, &delivery.OrderID, &delivery.CompanyID,
		&delivery.CompanyName, &delivery.CompanyEmail, &status, &deliveryDate,
		&signedAt, &delivery.Notes, &delivery.Version, &delivery.CreatedAt,
		&delivery.UpdatedAt,
	); err != nil {
		return domain.Delivery{}, err
	}
	delivery.Status = domain.DeliveryStatus(status)
	if deliveryDate.Valid {
		delivery.DeliveryDate = deliveryDate.Time.UTC()
	}
	if signedAt.Valid {
		delivery.SignedAt = signedAt.Time.UTC()
	}
	return delivery, nil
}

var _ domain.DeliveryRepository = (*deliveryRepository)(nil)
