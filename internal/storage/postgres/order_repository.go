package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Уникальный индекс по offer_id превращает повторную доставку триггера
// саги в ErrDuplicateSource вместо дублирующего заказа.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, number, offer_id, company_id, company_name, company_email,
			status, currency, total_minor, notes, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		order.ID, order.Number, nullString(order.OfferID), order.CompanyID,
		order.CompanyName, order.CompanyEmail, string(order.Status), order.Currency,
		order.TotalMinor, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if order.OfferID != "" {
				if _, getErr := r.GetByOffer(order.OfferID); getErr == nil {
					return domain.ErrDuplicateSource
				}
			}
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) GetByOffer(offerID string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE offer_id = $1`, offerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order by offer: %w", err)
	}
	return order, nil
}

func (r *orderRepository) List(limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, orderSelect+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET number = $2, company_id = $3, company_name = $4, company_email = $5,
		    status = $6, currency = $7, total_minor = $8, notes = $9,
		    version = version + 1, updated_at = $10
		WHERE id = $1 AND version = $11
	`,
		order.ID, order.Number, order.CompanyID, order.CompanyName, order.CompanyEmail,
		string(order.Status), order.Currency, order.TotalMinor, order.Notes,
		time.Now().UTC(), order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order update: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(order.ID); errors.Is(getErr, domain.ErrOrderNotFound) {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

const orderSelect = `
	SELECT id, number, offer_id, company_id, company_name, company_email,
	       status, currency, total_minor, notes, version, created_at, updated_at
	FROM orders`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		status  string
		offerID sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.Number, &offerID, &order.CompanyID, &order.CompanyName,
		&order.CompanyEmail, &status, &order.Currency, &order.TotalMinor,
		&order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if offerID.Valid {
		order.OfferID = offerID.String
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
