package ecosystem_test

import (
	"context"
	"testing"

	ecodomain "github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ownership"
	"github.com/dataspace-foundry/negotiation/internal/app/storage/memory"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/pkg/testutil"
)

type fixture struct {
	svc     *ecosystem.Service
	store   *memory.Store
	gateway *testutil.FakeInjectionGateway

	orchestrator string
	member       string
	ecosystemID  string
	offeringID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	gateway := testutil.NewFakeInjectionGateway()

	orchestrator, err := store.CreateParticipant(ctx, participant.Participant{Name: "Orchestrator Org"})
	if err != nil {
		t.Fatalf("create orchestrator: %v", err)
	}
	member, err := store.CreateParticipant(ctx, participant.Participant{Name: "Member Org"})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	off, err := store.CreateServiceOffering(ctx, offering.ServiceOffering{Name: "Weather Data", ProvidedBy: member.ID})
	if err != nil {
		t.Fatalf("create offering: %v", err)
	}
	eco, err := store.CreateEcosystem(ctx, ecodomain.Ecosystem{
		Name:         "Mobility Ecosystem",
		Orchestrator: orchestrator.ID,
		Contract:     "contract-eco-1",
	})
	if err != nil {
		t.Fatalf("create ecosystem: %v", err)
	}

	verifier := ownership.New(store, nil)
	reconciler := ecosystem.NewReconciler(store, gateway, "https://catalog.example.com", nil)
	svc := ecosystem.New(store, store, store, verifier, reconciler, nil)

	return &fixture{
		svc:          svc,
		store:        store,
		gateway:      gateway,
		orchestrator: orchestrator.ID,
		member:       member.ID,
		ecosystemID:  eco.ID,
		offeringID:   off.ID,
	}
}

func (f *fixture) createParams() ecosystem.CreateParams {
	return ecosystem.CreateParams{
		EcosystemID:   f.ecosystemID,
		ParticipantID: f.member,
		Policies: []negotiation.PolicyConfiguration{{
			ServiceOffering: f.offeringID,
			Policy:          []negotiation.PolicyRule{{RuleID: "no-resale"}},
		}},
		Roles: []string{"data provider"},
	}
}

func expectCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		t.Fatalf("expected service error with code %s, got %v", code, err)
	}
	if serviceErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, serviceErr.Code, serviceErr.Message)
	}
}

func TestCreateNegotiationStartsRequested(t *testing.T) {
	f := newFixture(t)

	nego, err := f.svc.CreateNegotiation(context.Background(), f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}
	if nego.Status != negotiation.StatusRequested {
		t.Errorf("expected status %s, got %s", negotiation.StatusRequested, nego.Status)
	}
	if nego.LatestNegotiator != f.member {
		t.Errorf("expected latest negotiator %s, got %s", f.member, nego.LatestNegotiator)
	}

	eco, err := f.store.GetEcosystem(context.Background(), f.ecosystemID)
	if err != nil {
		t.Fatalf("GetEcosystem failed: %v", err)
	}
	inv := eco.PendingInvitation(f.member)
	if inv == nil {
		t.Fatal("expected a pending invitation on the ecosystem")
	}
	if len(inv.Roles) != 1 || inv.Roles[0] != "data provider" {
		t.Errorf("expected invitation roles carried over, got %v", inv.Roles)
	}
}

func TestCreateNegotiationRejectsDuplicate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CreateNegotiation(context.Background(), f.member, f.createParams()); err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}
	_, err := f.svc.CreateNegotiation(context.Background(), f.member, f.createParams())
	expectCode(t, err, apperrors.CodeConflict)
}

func TestCreateNegotiationUnknownReferences(t *testing.T) {
	f := newFixture(t)

	params := f.createParams()
	params.ParticipantID = "missing"
	_, err := f.svc.CreateNegotiation(context.Background(), f.member, params)
	expectCode(t, err, apperrors.CodeNotFound)

	params = f.createParams()
	params.EcosystemID = "missing"
	_, err = f.svc.CreateNegotiation(context.Background(), f.member, params)
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestCreateNegotiationVerifiesOwnership(t *testing.T) {
	f := newFixture(t)

	foreign, err := f.store.CreateServiceOffering(context.Background(), offering.ServiceOffering{
		Name:       "Foreign Offering",
		ProvidedBy: f.orchestrator,
	})
	if err != nil {
		t.Fatalf("create offering: %v", err)
	}

	params := f.createParams()
	params.Policies = []negotiation.PolicyConfiguration{{ServiceOffering: foreign.ID}}
	_, err = f.svc.CreateNegotiation(context.Background(), f.member, params)
	expectCode(t, err, apperrors.CodeOwnershipViolation)
}

func TestNegotiateEnforcesAlternation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	nego, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}

	// The initiator may not negotiate again before the other side moves.
	_, err = f.svc.NegotiateOnNegotiation(ctx, f.member, nego.ID, f.createParams().Policies, nil)
	expectCode(t, err, apperrors.CodeInvalidTransition)

	// The counterparty may.
	updated, err := f.svc.NegotiateOnNegotiation(ctx, f.orchestrator, nego.ID, f.createParams().Policies, nil)
	if err != nil {
		t.Fatalf("counterparty NegotiateOnNegotiation failed: %v", err)
	}
	if updated.Status != negotiation.StatusNegotiation {
		t.Errorf("expected status %s, got %s", negotiation.StatusNegotiation, updated.Status)
	}
	if updated.LatestNegotiator != f.orchestrator {
		t.Errorf("expected latest negotiator %s, got %s", f.orchestrator, updated.LatestNegotiator)
	}
}

func TestNegotiateRequiresActor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.NegotiateOnNegotiation(context.Background(), "", "any", nil, nil)
	expectCode(t, err, apperrors.CodePreconditionFailed)
}

func TestAcceptedNegotiationCanBeReopenedBySameActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	nego, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}
	accepted, err := f.svc.AcceptNegotiation(ctx, f.orchestrator, nego.ID)
	if err != nil {
		t.Fatalf("AcceptNegotiation failed: %v", err)
	}
	if accepted.Status != negotiation.StatusAccepted {
		t.Fatalf("expected status %s, got %s", negotiation.StatusAccepted, accepted.Status)
	}

	// Acceptance made the orchestrator the latest negotiator, yet re-opening
	// an accepted negotiation is allowed even for them.
	reopened, err := f.svc.NegotiateOnNegotiation(ctx, f.orchestrator, nego.ID, f.createParams().Policies, nil)
	if err != nil {
		t.Fatalf("reopening accepted negotiation failed: %v", err)
	}
	if reopened.Status != negotiation.StatusNegotiation {
		t.Errorf("expected status %s, got %s", negotiation.StatusNegotiation, reopened.Status)
	}
}

func TestAcceptOwnNegotiationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	nego, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}

	_, err = f.svc.AcceptNegotiation(ctx, f.member, nego.ID)
	expectCode(t, err, apperrors.CodeInvalidTransition)
}

func TestTerminatedIsAbsorbing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	nego, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}
	terminated, err := f.svc.TerminateNegotiation(ctx, f.orchestrator, nego.ID)
	if err != nil {
		t.Fatalf("TerminateNegotiation failed: %v", err)
	}
	if terminated.Status != negotiation.StatusTerminated {
		t.Fatalf("expected status %s, got %s", negotiation.StatusTerminated, terminated.Status)
	}

	_, err = f.svc.NegotiateOnNegotiation(ctx, f.member, nego.ID, f.createParams().Policies, nil)
	expectCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.svc.AcceptNegotiation(ctx, f.member, nego.ID)
	expectCode(t, err, apperrors.CodeInvalidTransition)
}

func TestAcceptAndReconcileAddsMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams()); err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}

	nego, err := f.svc.AcceptAndReconcile(ctx, f.orchestrator, f.ecosystemID, f.member)
	if err != nil {
		t.Fatalf("AcceptAndReconcile failed: %v", err)
	}
	if nego.Status != negotiation.StatusAccepted {
		t.Errorf("expected status %s, got %s", negotiation.StatusAccepted, nego.Status)
	}

	eco, err := f.store.GetEcosystem(ctx, f.ecosystemID)
	if err != nil {
		t.Fatalf("GetEcosystem failed: %v", err)
	}
	member := eco.Member(f.member)
	if member == nil {
		t.Fatal("expected participant added to the roster")
	}
	if len(member.Offerings) != 1 || member.Offerings[0].ServiceOffering != f.offeringID {
		t.Errorf("expected member offerings from negotiation, got %+v", member.Offerings)
	}
	if eco.PendingInvitation(f.member) != nil {
		t.Error("expected invitation no longer pending")
	}
}

func TestListNegotiationsIncludesOrchestratedEcosystems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams()); err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}

	// The member sees it as a party, the orchestrator through the ecosystem.
	forMember, err := f.svc.ListNegotiationsForParticipant(ctx, f.member, "none")
	if err != nil {
		t.Fatalf("list for member failed: %v", err)
	}
	if len(forMember) != 1 {
		t.Fatalf("expected 1 negotiation for member, got %d", len(forMember))
	}

	forOrchestrator, err := f.svc.ListNegotiationsForParticipant(ctx, f.orchestrator, "none")
	if err != nil {
		t.Fatalf("list for orchestrator failed: %v", err)
	}
	if len(forOrchestrator) != 1 {
		t.Fatalf("expected 1 negotiation for orchestrator, got %d", len(forOrchestrator))
	}
}

func TestFindNegotiationPopulatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateNegotiation(ctx, f.member, f.createParams())
	if err != nil {
		t.Fatalf("CreateNegotiation failed: %v", err)
	}

	view, err := f.svc.FindNegotiationByID(ctx, created.ID, "all")
	if err != nil {
		t.Fatalf("FindNegotiationByID failed: %v", err)
	}
	if view.ParticipantDoc == nil || view.ParticipantDoc.ID != f.member {
		t.Error("expected participant document populated")
	}
	if view.EcosystemDoc == nil || view.EcosystemDoc.ID != f.ecosystemID {
		t.Error("expected ecosystem document populated")
	}

	bare, err := f.svc.FindNegotiationByID(ctx, created.ID, "none")
	if err != nil {
		t.Fatalf("FindNegotiationByID failed: %v", err)
	}
	if bare.ParticipantDoc != nil || bare.EcosystemDoc != nil {
		t.Error("expected no documents populated for populate=none")
	}
}
