package app

import (
	"testing"

	"github.com/darioristic/crmflow/internal/domain"
)

// Хелперы для тестов пакета.

func seedAcceptedOffer(t *testing.T, deps *Dependencies) domain.Offer {
	t.Helper()
	offer := domain.Offer{
		ID:          "offer-1",
		Number:      "OF-2026-001",
		CompanyID:   "company-1",
		CompanyName: "Acme GmbH",
		Status:      domain.OfferStatusAccepted,
		Currency:    "EUR",
		TotalMinor:  100000,
	}
	if err := deps.Offers.Create(offer); err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return offer
}

func offerAcceptedEvent(offerID string) domain.DomainEvent {
	return domain.DomainEvent{
		ID:            "evt-1",
		EventType:     domain.EventOfferAccepted,
		AggregateID:   offerID,
		AggregateType: domain.AggregateOffer,
	}
}
