package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

// invoiceRepositoryInMemory — потокобезопасное in-memory хранилище счетов
// с ограничением уникальности по поставке-источнику.
type invoiceRepositoryInMemory struct {
	mu         sync.RWMutex
	invoices   map[string]domain.Invoice
	byDelivery map[string]string
}

// NewInvoiceRepository создаёт in-memory реализацию InvoiceRepository.
func NewInvoiceRepository() domain.InvoiceRepository {
	return &invoiceRepositoryInMemory{
		invoices:   make(map[string]domain.Invoice),
		byDelivery: make(map[string]string),
	}
}

func (r *invoiceRepositoryInMemory) Create(invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invoices[invoice.ID]; exists {
		return domain.ErrVersionConflict
	}
	if invoice.DeliveryID != "" {
		if _, exists := r.byDelivery[invoice.DeliveryID]; exists {
			return domain.ErrDuplicateSource
		}
	}

	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	if invoice.UpdatedAt.IsZero() {
		invoice.UpdatedAt = now
	}
	r.invoices[invoice.ID] = invoice
	if invoice.DeliveryID != "" {
		r.byDelivery[invoice.DeliveryID] = invoice.ID
	}
	return nil
}

func (r *invoiceRepositoryInMemory) Get(id string) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	invoice, ok := r.invoices[id]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (r *invoiceRepositoryInMemory) GetByDelivery(deliveryID string) (domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byDelivery[deliveryID]
	if !ok {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return r.invoices[id], nil
}

func (r *invoiceRepositoryInMemory) List(limit int) ([]domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Invoice, 0, len(r.invoices))
	for _, invoice := range r.invoices {
		result = append(result, invoice)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *invoiceRepositoryInMemory) Save(invoice domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.invoices[invoice.ID]
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if stored.Version != invoice.Version {
		return domain.ErrVersionConflict
	}

	invoice.Version++
	invoice.UpdatedAt = time.Now().UTC()
	r.invoices[invoice.ID] = invoice
	return nil
}

var _ domain.InvoiceRepository = (*invoiceRepositoryInMemory)(nil)
