package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/darioristic/crmflow/internal/domain"
)

// offerRepositoryInMemory — потокобезопасное in-memory хранилище офферов.
type offerRepositoryInMemory struct {
	mu     sync.RWMutex
	offers map[string]domain.Offer
}

// NewOfferRepository создаёт in-memory реализацию OfferRepository.
func NewOfferRepository() domain.OfferRepository {
	return &offerRepositoryInMemory{offers: make(map[string]domain.Offer)}
}

func (r *offerRepositoryInMemory) Create(offer domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.offers[offer.ID]; exists {
		return domain.ErrVersionConflict
	}

	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	if offer.UpdatedAt.IsZero() {
		offer.UpdatedAt = now
	}
	r.offers[offer.ID] = offer
	return nil
}

func (r *offerRepositoryInMemory) Get(id string) (domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offer, ok := r.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return offer, nil
}

func (r *offerRepositoryInMemory) List(limit int) ([]domain.Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Offer, 0, len(r.offers))
	for _, offer := range r.offers {
		result = append(result, offer)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *offerRepositoryInMemory) Save(offer domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.offers[offer.ID]
	if !ok {
		return domain.ErrOfferNotFound
	}
	if stored.Version != offer.Version {
		return domain.ErrVersionConflict
	}

	offer.Version++
	offer.UpdatedAt = time.Now().UTC()
	r.offers[offer.ID] = offer
	return nil
}

var _ domain.OfferRepository = (*offerRepositoryInMemory)(nil)
