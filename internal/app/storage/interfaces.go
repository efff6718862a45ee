package storage

import (
	"context"
	"errors"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
)

// Sentinel errors shared by all store implementations. Services classify
// these into the caller-facing taxonomy.
var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate signals a uniqueness violation at creation.
	ErrDuplicate = errors.New("record already exists")
	// ErrVersionConflict signals a lost optimistic version check on update.
	// Every update carries the version the caller read; a mismatch means a
	// concurrent writer got there first and the whole action must be retried.
	ErrVersionConflict = errors.New("record version conflict")
)

// ExchangeStore persists bilateral exchange configurations.
type ExchangeStore interface {
	CreateExchangeConfiguration(ctx context.Context, conf exchange.Configuration) (exchange.Configuration, error)
	// UpdateExchangeConfiguration applies a read-modify-write transition.
	// The stored version must equal conf.Version or ErrVersionConflict is
	// returned; on success the version is incremented.
	UpdateExchangeConfiguration(ctx context.Context, conf exchange.Configuration) (exchange.Configuration, error)
	GetExchangeConfiguration(ctx context.Context, id string) (exchange.Configuration, error)
	// FindExchangeConfiguration looks up the record for the exact
	// (provider, consumer, providerServiceOffering, consumerServiceOffering)
	// tuple. Returns ErrNotFound when none exists.
	FindExchangeConfiguration(ctx context.Context, provider, consumer, providerOffering, consumerOffering string) (exchange.Configuration, error)
	ListExchangeConfigurationsForParticipant(ctx context.Context, participantID string) ([]exchange.Configuration, error)
}

// NegotiationStore persists ecosystem negotiations.
type NegotiationStore interface {
	CreateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error)
	UpdateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error)
	GetNegotiation(ctx context.Context, id string) (negotiation.EcosystemNegotiation, error)
	// FindNegotiation looks up the negotiation for the (ecosystem,
	// participant) pair. Returns ErrNotFound when none exists.
	FindNegotiation(ctx context.Context, ecosystemID, participantID string) (negotiation.EcosystemNegotiation, error)
	// ListNegotiationsForParticipant returns negotiations where the
	// participant is the subject, the latest negotiator, or the ecosystem is
	// one of the given (orchestrated) ecosystems.
	ListNegotiationsForParticipant(ctx context.Context, participantID string, ecosystemIDs []string) ([]negotiation.EcosystemNegotiation, error)
}

// EcosystemStore persists ecosystem rosters.
type EcosystemStore interface {
	CreateEcosystem(ctx context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error)
	UpdateEcosystem(ctx context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error)
	GetEcosystem(ctx context.Context, id string) (ecosystem.Ecosystem, error)
	ListEcosystemsByOrchestrator(ctx context.Context, participantID string) ([]ecosystem.Ecosystem, error)
}

// OfferingStore persists catalog service offerings.
type OfferingStore interface {
	CreateServiceOffering(ctx context.Context, off offering.ServiceOffering) (offering.ServiceOffering, error)
	GetServiceOffering(ctx context.Context, id string) (offering.ServiceOffering, error)
	ListServiceOfferingsByProvider(ctx context.Context, participantID string) ([]offering.ServiceOffering, error)
}

// ParticipantStore persists platform participants.
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p participant.Participant) (participant.Participant, error)
	GetParticipant(ctx context.Context, id string) (participant.Participant, error)
}
