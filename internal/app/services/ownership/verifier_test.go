package ownership_test

import (
	"context"
	"testing"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ownership"
	"github.com/dataspace-foundry/negotiation/internal/app/storage/memory"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
)

func setup(t *testing.T) (*ownership.Verifier, *memory.Store) {
	t.Helper()
	store := memory.New()
	return ownership.New(store, nil), store
}

func seedOffering(t *testing.T, store *memory.Store, name, provider string) offering.ServiceOffering {
	t.Helper()
	off, err := store.CreateServiceOffering(context.Background(), offering.ServiceOffering{Name: name, ProvidedBy: provider})
	if err != nil {
		t.Fatalf("create offering: %v", err)
	}
	return off
}

func TestVerifyOwnershipAccepted(t *testing.T) {
	verifier, store := setup(t)
	off1 := seedOffering(t, store, "A", "member-1")
	off2 := seedOffering(t, store, "B", "member-1")

	err := verifier.VerifyOwnership(context.Background(), "member-1",
		[]negotiation.PolicyConfiguration{{ServiceOffering: off1.ID}},
		[]negotiation.PricingConfiguration{{ServiceOffering: off2.ID}})
	if err != nil {
		t.Fatalf("expected ownership verified, got %v", err)
	}
}

func TestVerifyOwnershipRejectsForeignOffering(t *testing.T) {
	verifier, store := setup(t)
	own := seedOffering(t, store, "A", "member-1")
	foreign := seedOffering(t, store, "B", "member-2")

	err := verifier.VerifyOwnership(context.Background(), "member-1",
		[]negotiation.PolicyConfiguration{
			{ServiceOffering: own.ID},
			{ServiceOffering: foreign.ID},
		}, nil)
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil || serviceErr.Code != apperrors.CodeOwnershipViolation {
		t.Fatalf("expected ownership violation, got %v", err)
	}
	if serviceErr.Details["serviceOffering"] != foreign.ID {
		t.Errorf("expected violating offering in details, got %v", serviceErr.Details)
	}
}

func TestVerifyOwnershipRejectsUnknownOffering(t *testing.T) {
	verifier, _ := setup(t)

	err := verifier.VerifyOwnership(context.Background(), "member-1",
		[]negotiation.PolicyConfiguration{{ServiceOffering: "missing"}}, nil)
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil || serviceErr.Code != apperrors.CodeOwnershipViolation {
		t.Fatalf("expected ownership violation for unknown offering, got %v", err)
	}
}

func TestVerifyOwnershipAllowsEmptyLists(t *testing.T) {
	verifier, _ := setup(t)

	if err := verifier.VerifyOwnership(context.Background(), "member-1", nil, nil); err != nil {
		t.Fatalf("expected no error for empty lists, got %v", err)
	}
}
