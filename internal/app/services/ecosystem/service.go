// Package ecosystem drives a participant's group-join negotiation with an
// orchestrated ecosystem and reconciles accepted negotiations into the
// ecosystem roster and its contract.
package ecosystem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ecodomain "github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/query"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ownership"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

// OfferingInjection is the offering-level policy payload expected by the
// contract service. Participant and service offering are resource URLs.
type OfferingInjection struct {
	Participant     string                   `json:"participant"`
	ServiceOffering string                   `json:"serviceOffering"`
	Policies        []negotiation.PolicyRule `json:"policies"`
}

// RoleObligation is one entry of a role/obligation batch injection.
type RoleObligation struct {
	Role   string                 `json:"role"`
	RuleID string                 `json:"ruleId"`
	Values map[string]interface{} `json:"values"`
}

// PolicyInjectionGateway manages policy rules on an ecosystem contract. The
// contract service has no native upsert, so reconciliation deletes before it
// re-injects.
type PolicyInjectionGateway interface {
	BatchInjectOfferingPolicies(ctx context.Context, contractID string, injection OfferingInjection) error
	DeleteOfferingPolicies(ctx context.Context, contractID, offeringID, participantID string) error
	BatchInjectRolesAndObligations(ctx context.Context, contractID string, entries []RoleObligation) error
}

// Service is the ecosystem negotiation state machine. It is stateless; every
// operation takes the acting participant explicitly.
type Service struct {
	negotiations storage.NegotiationStore
	ecosystems   storage.EcosystemStore
	participants storage.ParticipantStore
	verifier     *ownership.Verifier
	reconciler   *Reconciler
	log          *logger.Logger
}

// New constructs the ecosystem negotiation service.
func New(negotiations storage.NegotiationStore, ecosystems storage.EcosystemStore, participants storage.ParticipantStore, verifier *ownership.Verifier, reconciler *Reconciler, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ecosystem")
	}
	return &Service{
		negotiations: negotiations,
		ecosystems:   ecosystems,
		participants: participants,
		verifier:     verifier,
		reconciler:   reconciler,
		log:          log,
	}
}

// CreateParams describes a new negotiation between a participant and an
// ecosystem orchestrator. Creation can follow either an invitation or a join
// request.
type CreateParams struct {
	EcosystemID   string
	ParticipantID string
	Policies      []negotiation.PolicyConfiguration
	Pricings      []negotiation.PricingConfiguration
	Roles         []string
}

// CreateNegotiation opens a negotiation for a participant to join an
// ecosystem and issues the matching invitation on the ecosystem roster.
func (s *Service) CreateNegotiation(ctx context.Context, actorID string, params CreateParams) (negotiation.EcosystemNegotiation, error) {
	if strings.TrimSpace(actorID) == "" {
		return negotiation.EcosystemNegotiation{}, apperrors.PreconditionFailed("Negotiator ID not set")
	}
	if strings.TrimSpace(params.EcosystemID) == "" || strings.TrimSpace(params.ParticipantID) == "" {
		return negotiation.EcosystemNegotiation{}, apperrors.InvalidRequest("ecosystem and participant are required")
	}

	_, err := s.negotiations.FindNegotiation(ctx, params.EcosystemID, params.ParticipantID)
	if err == nil {
		return negotiation.EcosystemNegotiation{}, apperrors.Conflict("Negotiation already exists")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return negotiation.EcosystemNegotiation{}, err
	}

	if _, err := s.participants.GetParticipant(ctx, params.ParticipantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Participant not found")
		}
		return negotiation.EcosystemNegotiation{}, err
	}

	eco, err := s.ecosystems.GetEcosystem(ctx, params.EcosystemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Ecosystem not found")
		}
		return negotiation.EcosystemNegotiation{}, err
	}

	if err := s.verifier.VerifyOwnership(ctx, params.ParticipantID, params.Policies, params.Pricings); err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	// The negotiation doubles as an ecosystem invitation.
	if eco.PendingInvitation(params.ParticipantID) == nil {
		eco.Invitations = append(eco.Invitations, ecodomain.Invitation{
			Participant: params.ParticipantID,
			Roles:       params.Roles,
			Status:      ecodomain.StatusPending,
		})
		if _, err := s.ecosystems.UpdateEcosystem(ctx, eco); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				return negotiation.EcosystemNegotiation{}, apperrors.Conflict("Ecosystem was modified concurrently, retry the action")
			}
			return negotiation.EcosystemNegotiation{}, fmt.Errorf("issue invitation: %w", err)
		}
	}

	nego := negotiation.EcosystemNegotiation{
		Ecosystem:        params.EcosystemID,
		Participant:      params.ParticipantID,
		Policies:         params.Policies,
		Pricings:         params.Pricings,
		Status:           negotiation.StatusRequested,
		LatestNegotiator: actorID,
	}

	created, err := s.negotiations.CreateNegotiation(ctx, nego)
	if errors.Is(err, storage.ErrDuplicate) {
		return negotiation.EcosystemNegotiation{}, apperrors.Conflict("Negotiation already exists")
	}
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	s.log.WithField("negotiation_id", created.ID).
		WithField("ecosystem", created.Ecosystem).
		WithField("participant", created.Participant).
		Info("ecosystem negotiation created")
	return created, nil
}

// NegotiateOnNegotiation records a counter-offer. Strict alternation is
// enforced: the latest negotiator may not negotiate twice in a row, except
// that an accepted negotiation may be re-opened by either side.
func (s *Service) NegotiateOnNegotiation(ctx context.Context, actorID, negotiationID string, policies []negotiation.PolicyConfiguration, pricings []negotiation.PricingConfiguration) (negotiation.EcosystemNegotiation, error) {
	if strings.TrimSpace(actorID) == "" {
		return negotiation.EcosystemNegotiation{}, apperrors.PreconditionFailed("Negotiator ID not set")
	}

	nego, err := s.getNegotiation(ctx, negotiationID)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	if nego.LatestNegotiator == actorID && nego.Status != negotiation.StatusAccepted {
		return negotiation.EcosystemNegotiation{}, apperrors.InvalidTransition("Negotiator has already negotiated")
	}
	if nego.Status == negotiation.StatusTerminated {
		return negotiation.EcosystemNegotiation{}, apperrors.InvalidTransition("Negotiation has been terminated")
	}

	if err := s.verifier.VerifyOwnership(ctx, nego.Participant, policies, pricings); err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	nego.Policies = policies
	nego.Pricings = pricings
	nego.Status = negotiation.StatusNegotiation
	nego.LatestNegotiator = actorID

	updated, err := s.updateNegotiation(ctx, nego)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	s.log.WithField("negotiation_id", negotiationID).
		WithField("negotiator", actorID).
		Info("ecosystem negotiation counter-offer recorded")
	return updated, nil
}

// AcceptNegotiation marks the negotiation accepted. The accepting actor may
// not be the latest negotiator.
func (s *Service) AcceptNegotiation(ctx context.Context, actorID, negotiationID string) (negotiation.EcosystemNegotiation, error) {
	if strings.TrimSpace(actorID) == "" {
		return negotiation.EcosystemNegotiation{}, apperrors.PreconditionFailed("Negotiator ID not set")
	}

	nego, err := s.getNegotiation(ctx, negotiationID)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	if nego.LatestNegotiator == actorID {
		return negotiation.EcosystemNegotiation{}, apperrors.InvalidTransition("Negotiator cannot accept their own negotiation")
	}
	if nego.Status == negotiation.StatusTerminated {
		return negotiation.EcosystemNegotiation{}, apperrors.InvalidTransition("Negotiation has been terminated")
	}

	nego.Status = negotiation.StatusAccepted
	nego.LatestNegotiator = actorID

	updated, err := s.updateNegotiation(ctx, nego)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	s.log.WithField("negotiation_id", negotiationID).
		WithField("actor", actorID).
		Info("ecosystem negotiation accepted")
	return updated, nil
}

// TerminateNegotiation terminates the negotiation. Terminated is absorbing;
// no transition leaves it.
func (s *Service) TerminateNegotiation(ctx context.Context, actorID, negotiationID string) (negotiation.EcosystemNegotiation, error) {
	nego, err := s.getNegotiation(ctx, negotiationID)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	nego.Status = negotiation.StatusTerminated
	nego.LatestNegotiator = actorID

	updated, err := s.updateNegotiation(ctx, nego)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	s.log.WithField("negotiation_id", negotiationID).
		WithField("actor", actorID).
		Info("ecosystem negotiation terminated")
	return updated, nil
}

// AcceptAndReconcile accepts the negotiation for the participant in the
// ecosystem and merges the negotiated terms into the ecosystem roster and its
// contract.
func (s *Service) AcceptAndReconcile(ctx context.Context, actorID, ecosystemID, participantID string) (negotiation.EcosystemNegotiation, error) {
	eco, err := s.ecosystems.GetEcosystem(ctx, ecosystemID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Ecosystem not found")
		}
		return negotiation.EcosystemNegotiation{}, err
	}

	nego, err := s.negotiations.FindNegotiation(ctx, ecosystemID, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Negotiation not found")
		}
		return negotiation.EcosystemNegotiation{}, err
	}

	accepted, err := s.AcceptNegotiation(ctx, actorID, nego.ID)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	if _, err := s.reconciler.Apply(ctx, eco, accepted); err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	return accepted, nil
}

// ResolveNegotiationID returns the id of the negotiation between the
// ecosystem and the participant.
func (s *Service) ResolveNegotiationID(ctx context.Context, ecosystemID, participantID string) (string, error) {
	nego, err := s.negotiations.FindNegotiation(ctx, ecosystemID, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.NotFound("Negotiation not found")
		}
		return "", err
	}
	return nego.ID, nil
}

// FindNegotiationByID returns a negotiation expanded per the populate option.
func (s *Service) FindNegotiationByID(ctx context.Context, negotiationID, populate string) (query.NegotiationView, error) {
	nego, err := s.getNegotiation(ctx, negotiationID)
	if err != nil {
		return query.NegotiationView{}, err
	}
	return s.populateNegotiation(ctx, nego, query.NormalizePopulate(populate)), nil
}

// FindNegotiationForParticipant returns the negotiation for the
// (ecosystem, participant) pair expanded per the populate option.
func (s *Service) FindNegotiationForParticipant(ctx context.Context, participantID, ecosystemID, populate string) (query.NegotiationView, error) {
	nego, err := s.negotiations.FindNegotiation(ctx, ecosystemID, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return query.NegotiationView{}, apperrors.NotFound("Negotiation not found")
		}
		return query.NegotiationView{}, err
	}
	return s.populateNegotiation(ctx, nego, query.NormalizePopulate(populate)), nil
}

// ListNegotiationsForParticipant returns all negotiations the participant is
// a party to: as subject, as latest negotiator, or as orchestrator of the
// ecosystem.
func (s *Service) ListNegotiationsForParticipant(ctx context.Context, participantID, populate string) ([]query.NegotiationView, error) {
	orchestrated, err := s.ecosystems.ListEcosystemsByOrchestrator(ctx, participantID)
	if err != nil {
		return nil, err
	}
	ecosystemIDs := make([]string, 0, len(orchestrated))
	for _, eco := range orchestrated {
		ecosystemIDs = append(ecosystemIDs, eco.ID)
	}

	negos, err := s.negotiations.ListNegotiationsForParticipant(ctx, participantID, ecosystemIDs)
	if err != nil {
		return nil, err
	}

	option := query.NormalizePopulate(populate)
	views := make([]query.NegotiationView, 0, len(negos))
	for _, nego := range negos {
		views = append(views, s.populateNegotiation(ctx, nego, option))
	}
	return views, nil
}

func (s *Service) populateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation, option query.PopulateOption) query.NegotiationView {
	refs := query.References{}
	if option == query.PopulateAll || option == query.PopulateParticipant {
		if p, err := s.participants.GetParticipant(ctx, nego.Participant); err == nil {
			refs.Participant = &p
		}
	}
	if option == query.PopulateAll || option == query.PopulateEcosystem {
		if eco, err := s.ecosystems.GetEcosystem(ctx, nego.Ecosystem); err == nil {
			refs.Ecosystem = &eco
		}
	}
	return query.ProjectNegotiation(nego, refs, option)
}

func (s *Service) getNegotiation(ctx context.Context, id string) (negotiation.EcosystemNegotiation, error) {
	nego, err := s.negotiations.GetNegotiation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Negotiation not found")
	}
	return nego, err
}

func (s *Service) updateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error) {
	updated, err := s.negotiations.UpdateNegotiation(ctx, nego)
	if errors.Is(err, storage.ErrVersionConflict) {
		return negotiation.EcosystemNegotiation{}, apperrors.Conflict("Negotiation was modified concurrently, retry the action")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return negotiation.EcosystemNegotiation{}, apperrors.NotFound("Negotiation not found")
	}
	if err != nil {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("update negotiation: %w", err)
	}
	return updated, nil
}
