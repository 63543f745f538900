package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodePayload_Offer(t *testing.T) {
	raw := json.RawMessage(`{"number":"OF-1","companyId":"company-1","status":"accepted","currency":"EUR","totalMinor":100000}`)

	payload, err := DecodePayload(EventOfferAccepted, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	offer, ok := payload.(*OfferPayload)
	if !ok {
		t.Fatalf("expected *OfferPayload, got %T", payload)
	}
	if offer.CompanyID != "company-1" {
		t.Fatalf("expected company-1, got %s", offer.CompanyID)
	}
	if offer.TotalMinor != 100000 {
		t.Fatalf("expected total 100000, got %d", offer.TotalMinor)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload("offer.tweeted", nil)
	if !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestDecodePayload_ValidationFails(t *testing.T) {
	raw := json.RawMessage(`{"number":"OF-2","status":"sent","currency":"EUR","totalMinor":100}`)

	if _, err := DecodePayload(EventOfferSent, raw); !errors.Is(err, ErrCompanyRequired) {
		t.Fatalf("expected ErrCompanyRequired, got %v", err)
	}
}

func TestDecodePayload_DeliveryRequiresOrder(t *testing.T) {
	raw := json.RawMessage(`{"number":"DL-1","companyId":"company-1","status":"prepared"}`)

	if _, err := DecodePayload(EventDeliveryCreated, raw); !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}
}

func TestDomainEvent_Validate(t *testing.T) {
	event := DomainEvent{}
	errs := event.Validate()
	if len(errs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d: %v", len(errs), errs)
	}

	event = DomainEvent{
		EventType:     EventOfferCreated,
		AggregateID:   "offer-1",
		AggregateType: AggregateOffer,
	}
	if errs := event.Validate(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOffer_ValidateInvariants(t *testing.T) {
	offer := Offer{TotalMinor: -1}
	errs := offer.ValidateInvariants()
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}

	offer = Offer{CompanyID: "company-1", Currency: "EUR", TotalMinor: 1000}
	if errs := offer.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
