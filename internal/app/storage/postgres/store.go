// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/offering"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
)

const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL. Policy,
// pricing and roster collections are stored as JSONB columns; concurrent
// transitions are serialized with an optimistic version column.
type Store struct {
	db *sql.DB
}

var _ storage.ExchangeStore = (*Store)(nil)
var _ storage.NegotiationStore = (*Store)(nil)
var _ storage.EcosystemStore = (*Store)(nil)
var _ storage.OfferingStore = (*Store)(nil)
var _ storage.ParticipantStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// --- ExchangeStore -----------------------------------------------------------

func (s *Store) CreateExchangeConfiguration(ctx context.Context, conf exchange.Configuration) (exchange.Configuration, error) {
	if conf.ID == "" {
		conf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conf.CreatedAt = now
	conf.UpdatedAt = now
	conf.Version = 1

	policiesJSON, err := json.Marshal(conf.ProviderPolicies)
	if err != nil {
		return exchange.Configuration{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchange_configurations (
			id, provider, consumer, provider_service_offering, consumer_service_offering,
			negotiation_status, provider_policies, contract,
			signature_provider, signature_consumer, policies_injected,
			latest_negotiator, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, conf.ID, conf.Provider, conf.Consumer, conf.ProviderServiceOffering, conf.ConsumerServiceOffering,
		conf.NegotiationStatus, policiesJSON, conf.Contract,
		conf.Signatures.Provider, conf.Signatures.Consumer, conf.PoliciesInjected,
		conf.LatestNegotiator, conf.Version, conf.CreatedAt, conf.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return exchange.Configuration{}, fmt.Errorf("exchange configuration: %w", storage.ErrDuplicate)
		}
		return exchange.Configuration{}, err
	}
	return conf, nil
}

func (s *Store) UpdateExchangeConfiguration(ctx context.Context, conf exchange.Configuration) (exchange.Configuration, error) {
	policiesJSON, err := json.Marshal(conf.ProviderPolicies)
	if err != nil {
		return exchange.Configuration{}, err
	}
	updatedAt := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE exchange_configurations
		SET negotiation_status = $2, provider_policies = $3, contract = $4,
		    signature_provider = $5, signature_consumer = $6, policies_injected = $7,
		    latest_negotiator = $8, version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $10
	`, conf.ID, conf.NegotiationStatus, policiesJSON, conf.Contract,
		conf.Signatures.Provider, conf.Signatures.Consumer, conf.PoliciesInjected,
		conf.LatestNegotiator, updatedAt, conf.Version)
	if err != nil {
		return exchange.Configuration{}, err
	}
	if err := s.requireVersionedWrite(ctx, result, "exchange_configurations", conf.ID); err != nil {
		return exchange.Configuration{}, err
	}

	conf.Version++
	conf.UpdatedAt = updatedAt
	return conf, nil
}

func (s *Store) GetExchangeConfiguration(ctx context.Context, id string) (exchange.Configuration, error) {
	return s.scanExchange(s.db.QueryRowContext(ctx, `
		SELECT id, provider, consumer, provider_service_offering, consumer_service_offering,
		       negotiation_status, provider_policies, contract,
		       signature_provider, signature_consumer, policies_injected,
		       latest_negotiator, version, created_at, updated_at
		FROM exchange_configurations WHERE id = $1
	`, id))
}

func (s *Store) FindExchangeConfiguration(ctx context.Context, provider, consumer, providerOffering, consumerOffering string) (exchange.Configuration, error) {
	return s.scanExchange(s.db.QueryRowContext(ctx, `
		SELECT id, provider, consumer, provider_service_offering, consumer_service_offering,
		       negotiation_status, provider_policies, contract,
		       signature_provider, signature_consumer, policies_injected,
		       latest_negotiator, version, created_at, updated_at
		FROM exchange_configurations
		WHERE provider = $1 AND consumer = $2
		  AND provider_service_offering = $3 AND consumer_service_offering = $4
	`, provider, consumer, providerOffering, consumerOffering))
}

func (s *Store) ListExchangeConfigurationsForParticipant(ctx context.Context, participantID string) ([]exchange.Configuration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, consumer, provider_service_offering, consumer_service_offering,
		       negotiation_status, provider_policies, contract,
		       signature_provider, signature_consumer, policies_injected,
		       latest_negotiator, version, created_at, updated_at
		FROM exchange_configurations
		WHERE provider = $1 OR consumer = $1
		ORDER BY created_at
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []exchange.Configuration
	for rows.Next() {
		conf, err := s.scanExchange(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, conf)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanExchange(row rowScanner) (exchange.Configuration, error) {
	var conf exchange.Configuration
	var policiesJSON []byte
	err := row.Scan(&conf.ID, &conf.Provider, &conf.Consumer,
		&conf.ProviderServiceOffering, &conf.ConsumerServiceOffering,
		&conf.NegotiationStatus, &policiesJSON, &conf.Contract,
		&conf.Signatures.Provider, &conf.Signatures.Consumer, &conf.PoliciesInjected,
		&conf.LatestNegotiator, &conf.Version, &conf.CreatedAt, &conf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return exchange.Configuration{}, fmt.Errorf("exchange configuration: %w", storage.ErrNotFound)
	}
	if err != nil {
		return exchange.Configuration{}, err
	}
	if len(policiesJSON) > 0 {
		if err := json.Unmarshal(policiesJSON, &conf.ProviderPolicies); err != nil {
			return exchange.Configuration{}, err
		}
	}
	return conf, nil
}

// --- NegotiationStore --------------------------------------------------------

func (s *Store) CreateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error) {
	if nego.ID == "" {
		nego.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	nego.CreatedAt = now
	nego.UpdatedAt = now
	nego.Version = 1

	policiesJSON, err := json.Marshal(nego.Policies)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	pricingsJSON, err := json.Marshal(nego.Pricings)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ecosystem_negotiations (
			id, ecosystem, participant, policies, pricings,
			status, latest_negotiator, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, nego.ID, nego.Ecosystem, nego.Participant, policiesJSON, pricingsJSON,
		nego.Status, nego.LatestNegotiator, nego.Version, nego.CreatedAt, nego.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation: %w", storage.ErrDuplicate)
		}
		return negotiation.EcosystemNegotiation{}, err
	}
	return nego, nil
}

func (s *Store) UpdateNegotiation(ctx context.Context, nego negotiation.EcosystemNegotiation) (negotiation.EcosystemNegotiation, error) {
	policiesJSON, err := json.Marshal(nego.Policies)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	pricingsJSON, err := json.Marshal(nego.Pricings)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	updatedAt := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE ecosystem_negotiations
		SET policies = $2, pricings = $3, status = $4, latest_negotiator = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $7
	`, nego.ID, policiesJSON, pricingsJSON, nego.Status, nego.LatestNegotiator, updatedAt, nego.Version)
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	if err := s.requireVersionedWrite(ctx, result, "ecosystem_negotiations", nego.ID); err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}

	nego.Version++
	nego.UpdatedAt = updatedAt
	return nego, nil
}

func (s *Store) GetNegotiation(ctx context.Context, id string) (negotiation.EcosystemNegotiation, error) {
	return s.scanNegotiation(s.db.QueryRowContext(ctx, `
		SELECT id, ecosystem, participant, policies, pricings,
		       status, latest_negotiator, version, created_at, updated_at
		FROM ecosystem_negotiations WHERE id = $1
	`, id))
}

func (s *Store) FindNegotiation(ctx context.Context, ecosystemID, participantID string) (negotiation.EcosystemNegotiation, error) {
	return s.scanNegotiation(s.db.QueryRowContext(ctx, `
		SELECT id, ecosystem, participant, policies, pricings,
		       status, latest_negotiator, version, created_at, updated_at
		FROM ecosystem_negotiations WHERE ecosystem = $1 AND participant = $2
	`, ecosystemID, participantID))
}

func (s *Store) ListNegotiationsForParticipant(ctx context.Context, participantID string, ecosystemIDs []string) ([]negotiation.EcosystemNegotiation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ecosystem, participant, policies, pricings,
		       status, latest_negotiator, version, created_at, updated_at
		FROM ecosystem_negotiations
		WHERE participant = $1 OR latest_negotiator = $1 OR ecosystem = ANY($2)
		ORDER BY created_at
	`, participantID, pq.Array(ecosystemIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []negotiation.EcosystemNegotiation
	for rows.Next() {
		nego, err := s.scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, nego)
	}
	return result, rows.Err()
}

func (s *Store) scanNegotiation(row rowScanner) (negotiation.EcosystemNegotiation, error) {
	var nego negotiation.EcosystemNegotiation
	var policiesJSON, pricingsJSON []byte
	err := row.Scan(&nego.ID, &nego.Ecosystem, &nego.Participant, &policiesJSON, &pricingsJSON,
		&nego.Status, &nego.LatestNegotiator, &nego.Version, &nego.CreatedAt, &nego.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return negotiation.EcosystemNegotiation{}, fmt.Errorf("negotiation: %w", storage.ErrNotFound)
	}
	if err != nil {
		return negotiation.EcosystemNegotiation{}, err
	}
	if len(policiesJSON) > 0 {
		if err := json.Unmarshal(policiesJSON, &nego.Policies); err != nil {
			return negotiation.EcosystemNegotiation{}, err
		}
	}
	if len(pricingsJSON) > 0 {
		if err := json.Unmarshal(pricingsJSON, &nego.Pricings); err != nil {
			return negotiation.EcosystemNegotiation{}, err
		}
	}
	return nego, nil
}

// --- EcosystemStore ----------------------------------------------------------

func (s *Store) CreateEcosystem(ctx context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error) {
	if eco.ID == "" {
		eco.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	eco.CreatedAt = now
	eco.UpdatedAt = now
	eco.Version = 1

	participantsJSON, invitationsJSON, joinRequestsJSON, err := marshalRoster(eco)
	if err != nil {
		return ecosystem.Ecosystem{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ecosystems (
			id, name, orchestrator, contract, participants, invitations, join_requests,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, eco.ID, eco.Name, eco.Orchestrator, eco.Contract,
		participantsJSON, invitationsJSON, joinRequestsJSON,
		eco.Version, eco.CreatedAt, eco.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem: %w", storage.ErrDuplicate)
		}
		return ecosystem.Ecosystem{}, err
	}
	return eco, nil
}

func (s *Store) UpdateEcosystem(ctx context.Context, eco ecosystem.Ecosystem) (ecosystem.Ecosystem, error) {
	participantsJSON, invitationsJSON, joinRequestsJSON, err := marshalRoster(eco)
	if err != nil {
		return ecosystem.Ecosystem{}, err
	}
	updatedAt := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE ecosystems
		SET name = $2, orchestrator = $3, contract = $4,
		    participants = $5, invitations = $6, join_requests = $7,
		    version = version + 1, updated_at = $8
		WHERE id = $1 AND version = $9
	`, eco.ID, eco.Name, eco.Orchestrator, eco.Contract,
		participantsJSON, invitationsJSON, joinRequestsJSON, updatedAt, eco.Version)
	if err != nil {
		return ecosystem.Ecosystem{}, err
	}
	if err := s.requireVersionedWrite(ctx, result, "ecosystems", eco.ID); err != nil {
		return ecosystem.Ecosystem{}, err
	}

	eco.Version++
	eco.UpdatedAt = updatedAt
	return eco, nil
}

func (s *Store) GetEcosystem(ctx context.Context, id string) (ecosystem.Ecosystem, error) {
	return s.scanEcosystem(s.db.QueryRowContext(ctx, `
		SELECT id, name, orchestrator, contract, participants, invitations, join_requests,
		       version, created_at, updated_at
		FROM ecosystems WHERE id = $1
	`, id))
}

func (s *Store) ListEcosystemsByOrchestrator(ctx context.Context, participantID string) ([]ecosystem.Ecosystem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, orchestrator, contract, participants, invitations, join_requests,
		       version, created_at, updated_at
		FROM ecosystems WHERE orchestrator = $1
		ORDER BY created_at
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ecosystem.Ecosystem
	for rows.Next() {
		eco, err := s.scanEcosystem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, eco)
	}
	return result, rows.Err()
}

func marshalRoster(eco ecosystem.Ecosystem) (participants, invitations, joinRequests []byte, err error) {
	if participants, err = json.Marshal(eco.Participants); err != nil {
		return nil, nil, nil, err
	}
	if invitations, err = json.Marshal(eco.Invitations); err != nil {
		return nil, nil, nil, err
	}
	if joinRequests, err = json.Marshal(eco.JoinRequests); err != nil {
		return nil, nil, nil, err
	}
	return participants, invitations, joinRequests, nil
}

func (s *Store) scanEcosystem(row rowScanner) (ecosystem.Ecosystem, error) {
	var eco ecosystem.Ecosystem
	var participantsJSON, invitationsJSON, joinRequestsJSON []byte
	err := row.Scan(&eco.ID, &eco.Name, &eco.Orchestrator, &eco.Contract,
		&participantsJSON, &invitationsJSON, &joinRequestsJSON,
		&eco.Version, &eco.CreatedAt, &eco.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ecosystem.Ecosystem{}, fmt.Errorf("ecosystem: %w", storage.ErrNotFound)
	}
	if err != nil {
		return ecosystem.Ecosystem{}, err
	}
	if len(participantsJSON) > 0 {
		if err := json.Unmarshal(participantsJSON, &eco.Participants); err != nil {
			return ecosystem.Ecosystem{}, err
		}
	}
	if len(invitationsJSON) > 0 {
		if err := json.Unmarshal(invitationsJSON, &eco.Invitations); err != nil {
			return ecosystem.Ecosystem{}, err
		}
	}
	if len(joinRequestsJSON) > 0 {
		if err := json.Unmarshal(joinRequestsJSON, &eco.JoinRequests); err != nil {
			return ecosystem.Ecosystem{}, err
		}
	}
	return eco, nil
}

// --- OfferingStore -----------------------------------------------------------

func (s *Store) CreateServiceOffering(ctx context.Context, off offering.ServiceOffering) (offering.ServiceOffering, error) {
	if off.ID == "" {
		off.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	off.CreatedAt = now
	off.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_offerings (id, name, provided_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, off.ID, off.Name, off.ProvidedBy, off.CreatedAt, off.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return offering.ServiceOffering{}, fmt.Errorf("service offering: %w", storage.ErrDuplicate)
		}
		return offering.ServiceOffering{}, err
	}
	return off, nil
}

func (s *Store) GetServiceOffering(ctx context.Context, id string) (offering.ServiceOffering, error) {
	var off offering.ServiceOffering
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, provided_by, created_at, updated_at
		FROM service_offerings WHERE id = $1
	`, id).Scan(&off.ID, &off.Name, &off.ProvidedBy, &off.CreatedAt, &off.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return offering.ServiceOffering{}, fmt.Errorf("service offering: %w", storage.ErrNotFound)
	}
	if err != nil {
		return offering.ServiceOffering{}, err
	}
	return off, nil
}

func (s *Store) ListServiceOfferingsByProvider(ctx context.Context, participantID string) ([]offering.ServiceOffering, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provided_by, created_at, updated_at
		FROM service_offerings WHERE provided_by = $1
		ORDER BY created_at
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []offering.ServiceOffering
	for rows.Next() {
		var off offering.ServiceOffering
		if err := rows.Scan(&off.ID, &off.Name, &off.ProvidedBy, &off.CreatedAt, &off.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, off)
	}
	return result, rows.Err()
}

// --- ParticipantStore --------------------------------------------------------

func (s *Store) CreateParticipant(ctx context.Context, p participant.Participant) (participant.Participant, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, name, did, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.DID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return participant.Participant{}, fmt.Errorf("participant: %w", storage.ErrDuplicate)
		}
		return participant.Participant{}, err
	}
	return p, nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (participant.Participant, error) {
	var p participant.Participant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, did, created_at, updated_at
		FROM participants WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.DID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return participant.Participant{}, fmt.Errorf("participant: %w", storage.ErrNotFound)
	}
	if err != nil {
		return participant.Participant{}, err
	}
	return p, nil
}

// requireVersionedWrite distinguishes a missing row from a lost version check
// after an optimistic UPDATE touched zero rows.
func (s *Store) requireVersionedWrite(ctx context.Context, result sql.Result, table, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	// #nosec G201 -- table names are compile-time constants.
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, storage.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, storage.ErrVersionConflict)
}
