package ecosystem

import (
	"context"
	"errors"
	"strings"
	"time"

	ecodomain "github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

const (
	defaultMaxInjectionAttempts = 3
	defaultInjectionBackoff     = 250 * time.Millisecond
)

// Reconciler merges an accepted negotiation into the ecosystem roster and
// keeps the ecosystem contract's injected policies in sync.
type Reconciler struct {
	ecosystems     storage.EcosystemStore
	injector       PolicyInjectionGateway
	catalogBaseURL string
	maxAttempts    int
	backoff        time.Duration
	log            *logger.Logger
}

// NewReconciler constructs a reconciler. catalogBaseURL is the public base
// URL of the catalog used to build participant and offering resource URLs.
func NewReconciler(ecosystems storage.EcosystemStore, injector PolicyInjectionGateway, catalogBaseURL string, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("reconciler")
	}
	return &Reconciler{
		ecosystems:     ecosystems,
		injector:       injector,
		catalogBaseURL: strings.TrimRight(catalogBaseURL, "/"),
		maxAttempts:    defaultMaxInjectionAttempts,
		backoff:        defaultInjectionBackoff,
		log:            log,
	}
}

// Apply reconciles the accepted negotiation into the ecosystem: pending
// invitations or join requests are authorized, the roster is updated with the
// merged policy and pricing bundle, and for re-negotiations the contract's
// injected policies are replaced. The ecosystem is persisted once at the end.
func (r *Reconciler) Apply(ctx context.Context, eco ecodomain.Ecosystem, nego negotiation.EcosystemNegotiation) (ecodomain.Ecosystem, error) {
	if eco.Contract == "" {
		return ecodomain.Ecosystem{}, apperrors.Conflict("No contract available on ecosystem " + eco.ID)
	}
	if len(nego.Policies) == 0 {
		return ecodomain.Ecosystem{}, apperrors.Conflict("No offering found, can't inject policies")
	}

	// Offerings may arrive as catalog URLs; the roster and the contract
	// service key them by bare id.
	policies := make([]negotiation.PolicyConfiguration, len(nego.Policies))
	for i, p := range nego.Policies {
		p.ServiceOffering = bareID(p.ServiceOffering)
		policies[i] = p
	}
	pricings := make([]negotiation.PricingConfiguration, len(nego.Pricings))
	for i, p := range nego.Pricings {
		p.ServiceOffering = bareID(p.ServiceOffering)
		pricings[i] = p
	}

	renegotiation := eco.Member(nego.Participant) != nil

	offerings := policyOnlyOfferings(policies)
	var roles []string
	if inv := eco.PendingInvitation(nego.Participant); inv != nil {
		inv.Status = ecodomain.StatusAuthorized
		inv.Offerings = offerings
		roles = inv.Roles
	} else if jr := eco.PendingJoinRequest(nego.Participant); jr != nil {
		jr.Status = ecodomain.StatusAuthorized
		jr.Offerings = offerings
		roles = jr.Roles
	}

	if !renegotiation {
		eco.Participants = append(eco.Participants, ecodomain.Member{
			Participant: nego.Participant,
			Offerings:   offerings,
			Roles:       roles,
		})
	}

	member := eco.Member(nego.Participant)
	bundle := mergedOfferings(policies, pricings)
	member.Offerings = bundle

	if renegotiation {
		if err := r.replaceInjectedPolicies(ctx, eco.Contract, nego.Participant, bundle); err != nil {
			return ecodomain.Ecosystem{}, err
		}
	} else {
		if err := r.injectNewMember(ctx, eco.Contract, nego.Participant, member.Roles, bundle); err != nil {
			return ecodomain.Ecosystem{}, err
		}
	}

	updated, err := r.ecosystems.UpdateEcosystem(ctx, eco)
	if errors.Is(err, storage.ErrVersionConflict) {
		return ecodomain.Ecosystem{}, apperrors.Conflict("Ecosystem was modified concurrently, retry the action")
	}
	if err != nil {
		return ecodomain.Ecosystem{}, err
	}

	r.log.WithField("ecosystem", eco.ID).
		WithField("participant", nego.Participant).
		WithField("offerings", len(bundle)).
		WithField("renegotiation", renegotiation).
		Info("ecosystem membership reconciled")
	return updated, nil
}

// injectNewMember pushes the member's roles and the first version of their
// offering policies into the ecosystem contract.
func (r *Reconciler) injectNewMember(ctx context.Context, contractID, participantID string, roles []string, bundle []ecodomain.MemberOffering) error {
	if len(roles) > 0 {
		entries := make([]RoleObligation, 0, len(roles))
		for _, role := range roles {
			entries = append(entries, RoleObligation{Role: role})
		}
		err := r.withRetry(ctx, func() error {
			return r.injector.BatchInjectRolesAndObligations(ctx, contractID, entries)
		})
		if err != nil {
			return apperrors.GatewayFailure("Failed to inject roles and obligations in contract", err).WithDetails("contract", contractID)
		}
	}
	return r.injectOfferings(ctx, contractID, participantID, bundle)
}

// replaceInjectedPolicies removes every previously injected policy for the
// participant's offerings and re-injects the current set.
func (r *Reconciler) replaceInjectedPolicies(ctx context.Context, contractID, participantID string, bundle []ecodomain.MemberOffering) error {
	for _, offering := range bundle {
		offeringID := offering.ServiceOffering
		err := r.withRetry(ctx, func() error {
			return r.injector.DeleteOfferingPolicies(ctx, contractID, offeringID, participantID)
		})
		if err != nil {
			return apperrors.GatewayFailure("Failed to remove existing policies from contract", err).
				WithDetails("contract", contractID).
				WithDetails("serviceOffering", offeringID)
		}
	}
	return r.injectOfferings(ctx, contractID, participantID, bundle)
}

func (r *Reconciler) injectOfferings(ctx context.Context, contractID, participantID string, bundle []ecodomain.MemberOffering) error {
	for _, offering := range bundle {
		injection := OfferingInjection{
			Participant:     r.participantURL(participantID),
			ServiceOffering: r.offeringURL(offering.ServiceOffering),
			Policies:        r.rewritePolicyTargets(offering.Policy),
		}
		err := r.withRetry(ctx, func() error {
			return r.injector.BatchInjectOfferingPolicies(ctx, contractID, injection)
		})
		if err != nil {
			return apperrors.GatewayFailure("Failed to inject policies in contract", err).
				WithDetails("contract", contractID).
				WithDetails("serviceOffering", offering.ServiceOffering)
		}
	}
	return nil
}

// rewritePolicyTargets returns copies of the rules with any "target" value
// rewritten to the offering's catalog URL.
func (r *Reconciler) rewritePolicyTargets(rules []negotiation.PolicyRule) []negotiation.PolicyRule {
	out := make([]negotiation.PolicyRule, len(rules))
	for i, rule := range rules {
		values := make(map[string]interface{}, len(rule.Values))
		for k, v := range rule.Values {
			values[k] = v
		}
		if target, ok := values["target"].(string); ok && target != "" {
			values["target"] = r.offeringURL(bareID(target))
		}
		out[i] = negotiation.PolicyRule{RuleID: rule.RuleID, Values: values}
	}
	return out
}

func (r *Reconciler) participantURL(id string) string {
	return r.catalogBaseURL + "/catalog/participants/" + id
}

func (r *Reconciler) offeringURL(id string) string {
	return r.catalogBaseURL + "/catalog/serviceofferings/" + id
}

func (r *Reconciler) withRetry(ctx context.Context, call func() error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff << uint(attempt-1)):
			}
		}
		if err = call(); err == nil {
			return nil
		}
		r.log.WithError(err).WithField("attempt", attempt+1).Warn("contract gateway call failed")
	}
	return err
}

// policyOnlyOfferings projects a policy list into roster offerings without
// pricing, mirroring what an authorized invitation carries.
func policyOnlyOfferings(policies []negotiation.PolicyConfiguration) []ecodomain.MemberOffering {
	out := make([]ecodomain.MemberOffering, 0, len(policies))
	for _, p := range policies {
		out = append(out, ecodomain.MemberOffering{
			ServiceOffering: p.ServiceOffering,
			Policy:          p.Policy,
		})
	}
	return out
}

// mergedOfferings joins the negotiated policies and pricings on the service
// offering id. Offerings without a matching pricing entry get zero-valued
// pricing fields. When no pricing was negotiated at all the roster keeps
// policy-only offerings.
func mergedOfferings(policies []negotiation.PolicyConfiguration, pricings []negotiation.PricingConfiguration) []ecodomain.MemberOffering {
	if len(pricings) == 0 {
		return policyOnlyOfferings(policies)
	}

	byOffering := make(map[string]negotiation.PricingConfiguration, len(pricings))
	for _, p := range pricings {
		byOffering[p.ServiceOffering] = p
	}

	out := make([]ecodomain.MemberOffering, 0, len(policies))
	for _, p := range policies {
		pricing := ecodomain.OfferingPricing{PricingModel: []string{}}
		if match, ok := byOffering[p.ServiceOffering]; ok {
			pricing = ecodomain.OfferingPricing{
				Pricing:            match.Pricing,
				PricingModel:       match.PricingModel,
				PricingDescription: match.PricingDescription,
				Currency:           match.Currency,
				BillingPeriod:      match.BillingPeriod,
				CostPerAPICall:     match.CostPerAPICall,
				SetupFee:           match.SetupFee,
			}
			if pricing.PricingModel == nil {
				pricing.PricingModel = []string{}
			}
		}
		out = append(out, ecodomain.MemberOffering{
			ServiceOffering: p.ServiceOffering,
			Policy:          p.Policy,
			Pricing:         &pricing,
		})
	}
	return out
}

// bareID strips a catalog URL down to the trailing resource id.
func bareID(ref string) string {
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}
