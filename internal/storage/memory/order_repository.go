package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

// orderRepositoryInMemory — потокобезопасное in-memory хранилище заказов.
// byOffer индексирует заказы по офферу-источнику и реализует ограничение
// уникальности: не более одного заказа на оффер.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	byOffer map[string]string
}

// NewOrderRepository создаёт in-memory реализацию OrderRepository.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		orders:  make(map[string]domain.Order),
		byOffer: make(map[string]string),
	}
}

func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrVersionConflict
	}
	if order.OfferID != "" {
		if _, exists := r.byOffer[order.OfferID]; exists {
			return domain.ErrDuplicateSource
		}
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	r.orders[order.ID] = order
	if order.OfferID != "" {
		r.byOffer[order.OfferID] = order.ID
	}
	return nil
}

func (r *orderRepositoryInMemory) Get(id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *orderRepositoryInMemory) GetByOffer(offerID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOffer[offerID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.orders[id], nil
}

func (r *orderRepositoryInMemory) List(limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *orderRepositoryInMemory) Save(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrVersionConflict
	}

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	r.orders[order.ID] = order
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
