package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

type offerRepository struct {
	db *sql.DB
}

// NewOfferRepository создаёт PostgreSQL-реализацию OfferRepository.
func NewOfferRepository(store *Store) domain.OfferRepository {
	return &offerRepository{db: store.DB()}
}

func (r *offerRepository) Create(offer domain.Offer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	if offer.UpdatedAt.IsZero() {
		offer.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offers (
			id, number, company_id, company_name, company_email, contact_name,
			status, currency, total_minor, notes, valid_until, version,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		offer.ID, offer.Number, offer.CompanyID, offer.CompanyName, offer.CompanyEmail,
		offer.ContactName, string(offer.Status), offer.Currency, offer.TotalMinor,
		offer.Notes, nullTime(offer.ValidUntil), offer.Version, offer.CreatedAt, offer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert offer: %w", err)
	}

	return nil
}

func (r *offerRepository) Get(id string) (domain.Offer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	offer, err := scanOffer(r.db.QueryRowContext(ctx, offerSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Offer{}, domain.ErrOfferNotFound
		}
		return domain.Offer{}, fmt.Errorf("select offer: %w", err)
	}
	return offer, nil
}

func (r *offerRepository) List(limit int) ([]domain.Offer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, offerSelect+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	offers := make([]domain.Offer, 0, limit)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}

	return offers, nil
}

func (r *offerRepository) Save(offer domain.Offer) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE offers
		SET number = $2, company_id = $3, company_name = $4, company_email = $5,
		    contact_name = $6, status = $7, currency = $8, total_minor = $9,
		    notes = $10, valid_until = $11, version = version + 1, updated_at = $12
		WHERE id = $1 AND version = $13
	`,
		offer.ID, offer.Number, offer.CompanyID, offer.CompanyName, offer.CompanyEmail,
		offer.ContactName, string(offer.Status), offer.Currency, offer.TotalMinor,
		offer.Notes, nullTime(offer.ValidUntil), time.Now().UTC(), offer.Version,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for offer update: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(offer.ID); errors.Is(getErr, domain.ErrOfferNotFound) {
			return domain.ErrOfferNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

const offerSelect = `
	SELECT id, number, company_id, company_name, company_email, contact_name,
	       status, currency, total_minor, notes, valid_until, version,
	       created_at, updated_at
	FROM offers`

func scanOffer(row rowScanner) (domain.Offer, error) {
	var (
		offer      domain.Offer
		status     string
		validUntil sql.NullTime
	)
	if err := row.Scan(
		&offer.ID, &offer.Number, &offer.CompanyID, &offer.CompanyName,
		&offer.CompanyEmail, &offer.ContactName, &status, &offer.Currency,
		&offer.TotalMinor, &offer.Notes, &validUntil, &offer.Version,
		&offer.CreatedAt, &offer.UpdatedAt,
	); err != nil {
		return domain.Offer{}, err
	}
	offer.Status = domain.OfferStatus(status)
	if validUntil.Valid {
		offer.ValidUntil = validUntil.Time.UTC()
	}
	return offer, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ domain.OfferRepository = (*offerRepository)(nil)
