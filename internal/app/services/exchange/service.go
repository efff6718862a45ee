// Package exchange drives a bilateral exchange configuration from access
// request through dual signature.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

// Contract is the contract-service view of a bilateral contract.
type Contract struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ContractSignature is the signature payload submitted to the contract
// service.
type ContractSignature struct {
	DID   string `json:"did"`
	Party string `json:"party"`
	Value string `json:"value"`
}

// ContractGateway generates and signs bilateral contracts. Implemented by the
// contract-service HTTP client.
type ContractGateway interface {
	GenerateBilateralContract(ctx context.Context, dataProvider, dataConsumer, serviceOffering string) (Contract, error)
	SignBilateralContract(ctx context.Context, contractID string, sig ContractSignature) (Contract, error)
}

// PolicyInjector injects the accumulated policy proposal into a bilateral
// contract as one batch.
type PolicyInjector interface {
	BatchInjectBilateralPolicies(ctx context.Context, contractID string, rules []negotiation.PolicyRule) error
}

// Service is the bilateral negotiation state machine. It is stateless; every
// operation takes the acting participant explicitly.
type Service struct {
	store     storage.ExchangeStore
	contracts ContractGateway
	injector  PolicyInjector
	log       *logger.Logger
}

// New constructs the bilateral negotiation service.
func New(store storage.ExchangeStore, contracts ContractGateway, injector PolicyInjector, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("exchange")
	}
	return &Service{store: store, contracts: contracts, injector: injector, log: log}
}

// RequestParams identifies the offering pair a consumer requests access to.
type RequestParams struct {
	Provider                string
	Consumer                string
	ProviderServiceOffering string
	ConsumerServiceOffering string
}

func (p RequestParams) validate() error {
	for name, v := range map[string]string{
		"provider":                p.Provider,
		"consumer":                p.Consumer,
		"providerServiceOffering": p.ProviderServiceOffering,
		"consumerServiceOffering": p.ConsumerServiceOffering,
	} {
		if strings.TrimSpace(v) == "" {
			return apperrors.InvalidRequest(name + " is required")
		}
	}
	return nil
}

// Request creates a service offering access request. Creation fails with a
// conflict when a record already exists for the exact tuple.
func (s *Service) Request(ctx context.Context, params RequestParams) (exchange.Configuration, error) {
	if err := params.validate(); err != nil {
		return exchange.Configuration{}, err
	}

	existing, err := s.store.FindExchangeConfiguration(ctx,
		params.Provider, params.Consumer, params.ProviderServiceOffering, params.ConsumerServiceOffering)
	if err == nil {
		return exchange.Configuration{}, apperrors.Conflict(
			"An access request for this configuration already exists with id: " + existing.ID)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return exchange.Configuration{}, err
	}

	conf := exchange.Configuration{
		Provider:                params.Provider,
		Consumer:                params.Consumer,
		ProviderServiceOffering: params.ProviderServiceOffering,
		ConsumerServiceOffering: params.ConsumerServiceOffering,
		NegotiationStatus:       exchange.StatusRequested,
	}

	created, err := s.store.CreateExchangeConfiguration(ctx, conf)
	if errors.Is(err, storage.ErrDuplicate) {
		// Lost the race against a concurrent identical request.
		return exchange.Configuration{}, apperrors.Conflict("An access request for this configuration already exists")
	}
	if err != nil {
		return exchange.Configuration{}, err
	}

	s.log.WithField("exchange_configuration_id", created.ID).
		WithField("provider", created.Provider).
		WithField("consumer", created.Consumer).
		Info("access request created")
	return created, nil
}

// Get returns an exchange configuration by ID.
func (s *Service) Get(ctx context.Context, id string) (exchange.Configuration, error) {
	conf, err := s.store.GetExchangeConfiguration(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return exchange.Configuration{}, apperrors.NotFound("Exchange Configuration not found")
	}
	return conf, err
}

// ListForParticipant returns all configurations in which the participant is
// either provider or consumer.
func (s *Service) ListForParticipant(ctx context.Context, participantID string) ([]exchange.Configuration, error) {
	return s.store.ListExchangeConfigurationsForParticipant(ctx, participantID)
}

// Authorize is the provider's approval of an access request. It generates the
// bilateral contract, stores the proposed policy and advances the record to
// Authorized. Only the provider may authorize.
func (s *Service) Authorize(ctx context.Context, actorID, id string, policy []negotiation.PolicyRule) (exchange.Configuration, error) {
	conf, err := s.Get(ctx, id)
	if err != nil {
		return exchange.Configuration{}, err
	}

	if conf.Provider != actorID {
		return exchange.Configuration{}, apperrors.Unauthorized("Exchange Configuration could not be authorized")
	}
	if conf.NegotiationStatus == exchange.StatusAuthorized {
		return exchange.Configuration{}, apperrors.InvalidTransition("Exchange configuration has already been authorized")
	}

	contract, err := s.contracts.GenerateBilateralContract(ctx, conf.Provider, conf.Consumer, conf.ProviderServiceOffering)
	if err != nil {
		return exchange.Configuration{}, apperrors.GatewayFailure("Failed to generate contract: "+err.Error(), err)
	}
	if contract.ID == "" {
		return exchange.Configuration{}, apperrors.GatewayFailure("Contract was not returned by Contract Service", nil)
	}

	conf.Contract = contract.ID
	conf.ProviderPolicies = policy
	conf.NegotiationStatus = exchange.StatusAuthorized
	conf.LatestNegotiator = actorID

	updated, err := s.updateConfiguration(ctx, conf)
	if err != nil {
		return exchange.Configuration{}, err
	}

	s.log.WithField("exchange_configuration_id", id).
		WithField("contract_id", contract.ID).
		Info("exchange configuration authorized")
	return updated, nil
}

// Negotiate overwrites the policy proposal with a counter-offer from either
// party. Turn alternation is not enforced at this step.
func (s *Service) Negotiate(ctx context.Context, actorID, id string, policy []negotiation.PolicyRule) (exchange.Configuration, error) {
	conf, err := s.Get(ctx, id)
	if err != nil {
		return exchange.Configuration{}, err
	}

	conf.ProviderPolicies = policy
	conf.NegotiationStatus = exchange.StatusNegotiation
	conf.LatestNegotiator = actorID

	updated, err := s.updateConfiguration(ctx, conf)
	if err != nil {
		return exchange.Configuration{}, err
	}

	s.log.WithField("exchange_configuration_id", id).
		WithField("negotiator", actorID).
		Info("policy counter-offer recorded")
	return updated, nil
}

// AcceptNegotiation advances the record to SignatureReady, the state that
// gates signing.
func (s *Service) AcceptNegotiation(ctx context.Context, actorID, id string) (exchange.Configuration, error) {
	conf, err := s.Get(ctx, id)
	if err != nil {
		return exchange.Configuration{}, err
	}

	if conf.NegotiationStatus == exchange.StatusSignatureReady {
		return exchange.Configuration{}, apperrors.InvalidTransition(
			"Exchange configuration has already been validated and is pending signatures")
	}

	conf.NegotiationStatus = exchange.StatusSignatureReady
	updated, err := s.updateConfiguration(ctx, conf)
	if err != nil {
		return exchange.Configuration{}, err
	}

	s.log.WithField("exchange_configuration_id", id).
		WithField("actor", actorID).
		Info("negotiation accepted, pending signatures")
	return updated, nil
}

// SignResult is returned from Sign: the updated record and the contract as
// reported by the contract service.
type SignResult struct {
	ExchangeConfiguration exchange.Configuration `json:"exchangeConfiguration"`
	Contract              Contract               `json:"contract"`
}

// Sign records the actor's signature and drives the dual-signature handshake.
// The accumulated policy proposal is injected into the bilateral contract
// exactly once, on the transition from one signature present to both present;
// a persisted flag written atomically with that signature guarantees a
// retried call after a downstream failure cannot re-inject. The signature is
// only submitted to the contract service after the local write succeeds, so a
// failed submission is resumable.
func (s *Service) Sign(ctx context.Context, actorID, id, signature string) (SignResult, error) {
	conf, err := s.Get(ctx, id)
	if err != nil {
		return SignResult{}, err
	}

	if conf.NegotiationStatus != exchange.StatusSignatureReady {
		return SignResult{}, apperrors.InvalidTransition("Exchange configuration is not ready for signature")
	}

	signingParty := "consumer"
	if actorID == conf.Provider {
		signingParty = "provider"
		conf.Signatures.Provider = signature
	} else {
		conf.Signatures.Consumer = signature
	}

	if conf.Signatures.BothPresent() && !conf.PoliciesInjected {
		if err := s.injector.BatchInjectBilateralPolicies(ctx, conf.Contract, conf.ProviderPolicies); err != nil {
			return SignResult{}, apperrors.GatewayFailure("Failed to inject policies in bilateral contract", err)
		}
		conf.PoliciesInjected = true
	}

	// Persist signature and injected flag together before submitting the
	// signature downstream; a retry after a failed submission then skips
	// injection and resumes at the sign step.
	conf, err = s.updateConfiguration(ctx, conf)
	if err != nil {
		return SignResult{}, err
	}

	contract, err := s.contracts.SignBilateralContract(ctx, conf.Contract, ContractSignature{
		DID:   actorID,
		Party: actorID,
		Value: signature,
	})
	if err != nil {
		return SignResult{}, apperrors.GatewayFailure("Failed to sign contract", err)
	}

	if contract.Status == "signed" {
		conf.NegotiationStatus = exchange.StatusSigned
		conf, err = s.updateConfiguration(ctx, conf)
		if err != nil {
			return SignResult{}, err
		}
	}

	s.log.WithField("exchange_configuration_id", id).
		WithField("signing_party", signingParty).
		WithField("contract_status", contract.Status).
		Info("exchange configuration signed")
	return SignResult{ExchangeConfiguration: conf, Contract: contract}, nil
}

func (s *Service) updateConfiguration(ctx context.Context, conf exchange.Configuration) (exchange.Configuration, error) {
	updated, err := s.store.UpdateExchangeConfiguration(ctx, conf)
	if errors.Is(err, storage.ErrVersionConflict) {
		return exchange.Configuration{}, apperrors.Conflict("Exchange configuration was modified concurrently, retry the action")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return exchange.Configuration{}, apperrors.NotFound("Exchange Configuration not found")
	}
	if err != nil {
		return exchange.Configuration{}, fmt.Errorf("update exchange configuration: %w", err)
	}
	return updated, nil
}
