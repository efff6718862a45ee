// Package app wires the negotiation service's stores, gateways and state
// machines together.
package app

import (
	"github.com/dataspace-foundry/negotiation/internal/app/metrics"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/services/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/services/ownership"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
	"github.com/dataspace-foundry/negotiation/internal/app/storage/memory"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

// Stores groups the persistence interfaces the application depends on. Any
// nil field defaults to a shared in-memory store.
type Stores struct {
	Exchanges    storage.ExchangeStore
	Negotiations storage.NegotiationStore
	Ecosystems   storage.EcosystemStore
	Offerings    storage.OfferingStore
	Participants storage.ParticipantStore
}

func (s *Stores) applyDefaults() {
	var mem *memory.Store
	fallback := func() *memory.Store {
		if mem == nil {
			mem = memory.New()
		}
		return mem
	}
	if s.Exchanges == nil {
		s.Exchanges = fallback()
	}
	if s.Negotiations == nil {
		s.Negotiations = fallback()
	}
	if s.Ecosystems == nil {
		s.Ecosystems = fallback()
	}
	if s.Offerings == nil {
		s.Offerings = fallback()
	}
	if s.Participants == nil {
		s.Participants = fallback()
	}
}

// Options configures a new Application.
type Options struct {
	Stores         Stores
	Contracts      exchange.ContractGateway
	PolicyInjector exchange.PolicyInjector
	EcosystemGW    ecosystem.PolicyInjectionGateway
	CatalogBaseURL string
	Metrics        *metrics.Metrics
	Logger         *logger.Logger
}

// Application holds the assembled negotiation services.
type Application struct {
	Stores     Stores
	Exchanges  *exchange.Service
	Ecosystems *ecosystem.Service
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// New assembles the application from its collaborators.
func New(opts Options) *Application {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("negotiation")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	opts.Stores.applyDefaults()

	verifier := ownership.New(opts.Stores.Offerings, log.WithField("component", "ownership"))
	reconciler := ecosystem.NewReconciler(opts.Stores.Ecosystems, opts.EcosystemGW, opts.CatalogBaseURL, log.WithField("component", "reconciler"))

	return &Application{
		Stores: opts.Stores,
		Exchanges: exchange.New(
			opts.Stores.Exchanges,
			opts.Contracts,
			opts.PolicyInjector,
			log.WithField("component", "exchange"),
		),
		Ecosystems: ecosystem.New(
			opts.Stores.Negotiations,
			opts.Stores.Ecosystems,
			opts.Stores.Participants,
			verifier,
			reconciler,
			log.WithField("component", "ecosystem"),
		),
		Metrics: opts.Metrics,
		Logger:  log,
	}
}
