package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository создаёт PostgreSQL-реализацию InvoiceRepository.
func NewInvoiceRepository(store *Store) domain.InvoiceRepository {
	return &invoiceRepository{db: store.DB()}
}

func (r *invoiceRepository) Create(invoice domain.Invoice) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	if invoice.UpdatedAt.IsZero() {
		invoice.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number, delivery_id, company_id, company_name, company_email,
			status, currency, total_minor, due_date, notes, version,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		invoice.ID, invoice.Number, nullString(invoice.DeliveryID), invoice.CompanyID,
		invoice.CompanyName, invoice.CompanyEmail, string(invoice.Status),
		invoice.Currency, invoice.TotalMinor, nullTime(invoice.DueDate), invoice.Notes,
		invoice.Version, invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if invoice.DeliveryID != "" {
				if _, getErr := r.GetByDelivery(invoice.DeliveryID); getErr == nil {
					return domain.ErrDuplicateSource
				}
			}
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) Get(id string) (domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, invoiceSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, domain.ErrInvoiceNotFound
		}
		return domain.Invoice{}, fmt.Errorf("select invoice: %w", err)
	}
	return invoice, nil
}

func (r *invoiceRepository) GetByDelivery(deliveryID string) (domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	invoice, err := scanInvoice(r.db.QueryRowContext(ctx, invoiceSelect+` WHERE delivery_id = $1`, deliveryID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, domain.ErrInvoiceNotFound
		}
		return domain.Invoice{}, fmt.Errorf("select invoice by delivery: %w", err)
	}
	return invoice, nil
}

func (r *invoiceRepository) List(limit int) ([]domain.Invoice, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, invoiceSelect+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}

	return invoices, nil
}

func (r *invoiceRepository) Save(invoice domain.Invoice) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices
		SET number = $2, company_id = $3, company_name = $4, company_email = $5,
		    status = $6, currency = $7, total_minor = $8, due_date = $9,
		    notes = $10, version = version + 1, updated_at = $11
		WHERE id = $1 AND version = $12
	`,
		invoice.ID, invoice.Number, invoice.CompanyID, invoice.CompanyName,
		invoice.CompanyEmail, string(invoice.Status), invoice.Currency,
		invoice.TotalMinor, nullTime(invoice.DueDate), invoice.Notes,
		time.Now().UTC(), invoice.Version,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for invoice update: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(invoice.ID); errors.Is(getErr, domain.ErrInvoiceNotFound) {
			return domain.ErrInvoiceNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

const invoiceSelect = `
	SELECT id, number, delivery_id, company_id, company_name, company_email,
	       status, currency, total_minor, due_date, notes, version,
	       created_at, updated_at
	FROM invoices`

func scanInvoice(row rowScanner) (domain.Invoice, error) {
	var (
		invoice    domain.Invoice
		status     string
		deliveryID sql.NullString
		dueDate    sql.NullTime
	)
	if err := row.Scan(
		&invoice.ID, &invoice.Number, &deliveryID, &invoice.CompanyID,
		&invoice.CompanyName, &invoice.CompanyEmail, &status, &invoice.Currency,
		&invoice.TotalMinor, &dueDate, &invoice.Notes, &invoice.Version,
		&invoice.CreatedAt, &invoice.UpdatedAt,
	); err != nil {
		return domain.Invoice{}, err
	}
	invoice.Status = domain.InvoiceStatus(status)
	if deliveryID.Valid {
		invoice.DeliveryID = deliveryID.String
	}
	if dueDate.Valid {
		invoice.DueDate = dueDate.Time.UTC()
	}
	return invoice, nil
}

var _ domain.InvoiceRepository = (*invoiceRepository)(nil)
