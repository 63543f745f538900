package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

// deliveryRepositoryInMemory — потокобезопасное in-memory хранилище поставок
// с ограничением уникальности по заказу-источнику.
type deliveryRepositoryInMemory struct {
	mu         sync.RWMutex
	deliveries map[string]domain.Delivery
	byOrder    map[string]string
}

// NewDeliveryRepository создаёт in-memory реализацию DeliveryRepository.
func NewDeliveryRepository() domain.DeliveryRepository {
	return &deliveryRepositoryInMemory{
		deliveries: make(map[string]domain.Delivery),
		byOrder:    make(map[string]string),
	}
}

func (r *deliveryRepositoryInMemory) Create(delivery domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deliveries[delivery.ID]; exists {
		return domain.ErrVersionConflict
	}
	if delivery.OrderID != "" {
		if _, exists := r.byOrder[delivery.OrderID]; exists {
			return domain.ErrDuplicateSource
		}
	}

	now := time.Now().UTC()
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}
	if delivery.UpdatedAt.IsZero() {
		delivery.UpdatedAt = now
	}
	r.deliveries[delivery.ID] = delivery
	if delivery.OrderID != "" {
		r.byOrder[delivery.OrderID] = delivery.ID
	}
	return nil
}

func (r *deliveryRepositoryInMemory) Get(id string) (domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivery, ok := r.deliveries[id]
	if !ok {
		return domain.Delivery{}, domain.ErrDeliveryNotFound
	}
	return delivery, nil
}

func (r *deliveryRepositoryInMemory) GetByOrder(orderID string) (domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Delivery{}, domain.ErrDeliveryNotFound
	}
	return r.deliveries[id], nil
}

func (r *deliveryRepositoryInMemory) List(limit int) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Delivery, 0, len(r.deliveries))
	for _, delivery := range r.deliveries {
		result = append(result, delivery)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *deliveryRepositoryInMemory) Save(delivery domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.deliveries[delivery.ID]
	if !ok {
		return domain.ErrDeliveryNotFound
	}
	if stored.Version != delivery.Version {
		return domain.ErrVersionConflict
	}

	delivery.Version++
	delivery.UpdatedAt = time.Now().UTC()
	r.deliveries[delivery.ID] = delivery
	return nil
}

var _ domain.DeliveryRepository = (*deliveryRepositoryInMemory)(nil)
