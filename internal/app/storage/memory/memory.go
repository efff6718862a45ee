package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Updates enforce the same optimistic version check as the
// PostgreSQL store.
type Store struct {
	mu            sync.RWMutex
	nextID        int64
	exchanges     map[string]exchange.Configuration
	negotiations  map[string]negotiation.EcosystemNegotiation
	ecosystems    map[string]ecosystem.Ecosystem
	offerings     map[string]offering.ServiceOffering
	participants  map[string]participant.Participant
	exchangeByKey map[string]string
	negoByKey     map[string]string
}

var _ storage.ExchangeStore = (*Store)(nil)
var _ storage.NegotiationStore = (*Store)(nil)
var _ storage.EcosystemStore = (*Store)(nil)
var _ storage.OfferingStore = (*Store)(nil)
var _ storage.ParticipantStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		exchanges:     make(map[string]exchange.Configuration),
		negotiations:  make(map[string]negotiation.EcosystemNegotiation),
		ecosystems:    make(map[string]ecosystem.Ecosystem),
		offerings:     make(map[string]offering.ServiceOffering),
		participants:  make(map[string]participant.Participant),
		exchangeByKey: make(map[string]string),
		negoByKey:     make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func exchangeKey(provider, consumer, providerOffering, consumerOffering string) string {
	return provider + "|" + consumer + "|" + providerOffering + "|" + consumerOffering
}

func negotiationKey(ecosystemID, participantID string) string {
	return ecosystemID + "|" + participantID
}

// ExchangeStore implementation ------------------------------------------------

func (s *Store) CreateExchangeConfiguration(_ context.Context, conf exchange.Configuration) (exchange.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := exchangeKey(conf.Provider, conf.Consumer, conf.ProviderServiceOffering, conf.ConsumerServiceOffering)
	if existing, ok := s.exchangeByKey[key]; ok {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration %s: %w", existing, storage.ErrDuplicate)
	}

	if conf.ID == "" {
		conf.ID = s.nextIDLocked()
	} else if _, exists := s.exchanges[conf.ID]; exists {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration %s: %w", conf.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	conf.CreatedAt = now
	conf.UpdatedAt = now
	conf.Version = 1

	s.exchanges[conf.ID] = cloneExchange(conf)
	s.exchangeByKey[key] = conf.ID
	return cloneExchange(conf), nil
}

func (s *Store) UpdateExchangeConfiguration(_ context.Context, conf exchange.Configuration) (exchange.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.exchanges[conf.ID]
	if !ok {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration %s: %w", conf.ID, storage.ErrNotFound)
	}
	if original.Version != conf.Version {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration %s: %w", conf.ID, storage.ErrVersionConflict)
	}

	conf.CreatedAt = original.CreatedAt
	conf.UpdatedAt = time.Now().UTC()
	conf.Version = original.Version + 1

	s.exchanges[conf.ID] = cloneExchange(conf)
	return cloneExchange(conf), nil
}

func (s *Store) GetExchangeConfiguration(_ context.Context, id string) (exchange.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conf, ok := s.exchanges[id]
	if !ok {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration %s: %w", id, storage.ErrNotFound)
	}
	return cloneExchange(conf), nil
}

func (s *Store) FindExchangeConfiguration(_ context.Context, provider, consumer, providerOffering, consumerOffering string) (exchange.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.exchangeByKey[exchangeKey(provider, consumer, providerOffering, consumerOffering)]
	if !ok {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration: %w", storage.ErrNotFound)
	}
	return cloneExchange(s.exchanges[id]), nil
}

func (s *Store) ListExchangeConfigurationsForParticipant(_ context.Context, participantID string) ([]exchange.Configuration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]exchange.Configuration, 0)
	for _, conf := range s.exchanges {
		if conf.InvolvesParticipant(participantID) {
			result = append(result, cloneExchange(conf))
		}
	}
	return result, nil
}

// NegotiationStore implementation ---------------------------------------------

func (s *Store) CreateNegotiation(_ context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := negotiationKey(nego.Ecosystem, nego.Participant)
	if existing, ok := s.negoByKey[key]; ok {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation %s: %w", existing, storage.ErrDuplicate)
	}

	if nego.ID == "" {
		nego.ID = s.nextIDLocked()
	} else if _, exists := s.negotiations[nego.ID]; exists {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation %s: %w", nego.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	nego.CreatedAt = now
	nego.UpdatedAt = now
	nego.Version = 1

	s.negotiations[nego.ID] = cloneNegotiation(nego)
	s.negoByKey[key] = nego.ID
	return cloneNegotiation(nego), nil
}

func (s *Store) UpdateNegotiation(_ context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.negotiations[nego.ID]
	if !ok {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation %s: %w", nego.ID, storage.ErrNotFound)
	}
	if original.Version != nego.Version {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation %s: %w", nego.ID, storage.ErrVersionConflict)
	}

	nego.CreatedAt = original.CreatedAt
	nego.UpdatedAt = time.Now().UTC()
	nego.Version = original.Version + 1

	s.negotiations[nego.ID] = cloneNegotiation(nego)
	return cloneNegotiation(nego), nil
}

func (s *Store) GetNegotiation(_ context.Context, id string) (negotiation.EcosystemNegotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nego, ok := s.negotiations[id]
	if !ok {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation %s: %w", id, storage.ErrNotFound)
	}
	return cloneNegotiation(nego), nil
}

func (s *Store) FindNegotiation(_ context.Context, ecosystemID, participantID string) (negotiation.EcosystemNegotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.negoByKey[negotiationKey(ecosystemID, participantID)]
	if !ok {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation: %w", storage.ErrNotFound)
	}
	return cloneNegotiation(s.negotiations[id]), nil
}

func (s *Store) ListNegotiationsForParticipant(_ context.Context, participantID string, ecosystemIDs []string) ([]negotiation.EcosystemNegotiation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inEcosystems := make(map[string]bool, len(ecosystemIDs))
	for _, id := range ecosystemIDs {
		inEcosystems[id] = true
	}

	result := make([]negotiation.EcosystemNegotiation, 0)
	for _, nego := range s.negotiations {
		if nego.Participant == participantID || nego.LatestNegotiator == participantID || inEcosystems[nego.Ecosystem] {
			result = append(result, cloneNegotiation(nego))
		}
	}
	return result, nil
}

// EcosystemStore implementation -----------------------------------------------

func (s *Store) CreateEcosystem(_ context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if eco.ID == "" {
		eco.ID = s.nextIDLocked()
	} else if _, exists := s.ecosystems[eco.ID]; exists {
		return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem %s: %w", eco.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	eco.CreatedAt = now
	eco.UpdatedAt = now
	eco.Version = 1

	s.ecosystems[eco.ID] = cloneEcosystem(eco)
	return cloneEcosystem(eco), nil
}

func (s *Store) UpdateEcosystem(_ context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.ecosystems[eco.ID]
	if !ok {
		return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem %s: %w", eco.ID, storage.ErrNotFound)
	}
	if original.Version != eco.Version {
		return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem %s: %w", eco.ID, storage.ErrVersionConflict)
	}

	eco.CreatedAt = original.CreatedAt
	eco.UpdatedAt = time.Now().UTC()
	eco.Version = original.Version + 1

	s.ecosystems[eco.ID] = cloneEcosystem(eco)
	return cloneEcosystem(eco), nil
}

func (s *Store) GetEcosystem(_ context.Context, id string) (ecosystem.Ecosystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eco, ok := s.ecosystems[id]
	if !ok {
		return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem %s: %w", id, storage.ErrNotFound)
	}
	return cloneEcosystem(eco), nil
}

func (s *Store) ListEcosystemsByOrchestrator(_ context.Context, participantID string) ([]ecosystem.Ecosystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ecosystem.Ecosystem, 0)
	for _, eco := range s.ecosystems {
		if eco.Orchestrator == participantID {
			result = append(result, cloneEcosystem(eco))
		}
	}
	return result, nil
}

// OfferingStore implementation ------------------------------------------------

func (s *Store) CreateServiceOffering(_ context.Context, off offering.ServiceOffering) (offering.ServiceOffering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off.ID == "" {
		off.ID = s.nextIDLocked()
	} else if _, exists := s.offerings[off.ID]; exists {
		return offering.ServiceOffering{}, fmt.Errorf("service offering %s: %w", off.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	off.CreatedAt = now
	off.UpdatedAt = now

	s.offerings[off.ID] = off
	return off, nil
}

func (s *Store) GetServiceOffering(_ context.Context, id string) (offering.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	off, ok := s.offerings[id]
	if !ok {
		return offering.ServiceOffering{}, fmt.Errorf("service offering %s: %w", id, storage.ErrNotFound)
	}
	return off, nil
}

func (s *Store) ListServiceOfferingsByProvider(_ context.Context, participantID string) ([]offering.ServiceOffering, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]offering.ServiceOffering, 0)
	for _, off := range s.offerings {
		if off.ProvidedBy == participantID {
			result = append(result, off)
		}
	}
	return result, nil
}

// ParticipantStore implementation ---------------------------------------------

func (s *Store) CreateParticipant(_ context.Context, p participant.Participant) (participant.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.participants[p.ID]; exists {
		return participant.Participant{}, fmt.Errorf("participant %s: %w", p.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.participants[p.ID] = p
	return p, nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (participant.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[id]
	if !ok {
		return participant.Participant{}, fmt.Errorf("participant %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}
