package memory

import (
	"github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/exchange"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
)

// Records are cloned on the way in and out so callers can never mutate the
// store's view of a record without going through an update.

func clonePolicyRules(rules []negotiation.PolicyRule) []negotiation.PolicyRule {
	if rules == nil {
		return nil
	}
	out := make([]negotiation.PolicyRule, len(rules))
	for i, r := range rules {
		out[i] = negotiation.PolicyRule{RuleID: r.RuleID, Values: cloneValues(r.Values)}
	}
	return out
}

func cloneValues(values map[string]interface{}) map[string]interface{} {
	if values == nil {
		return nil
	}
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func clonePolicyConfigurations(policies []negotiation.PolicyConfiguration) []negotiation.PolicyConfiguration {
	if policies == nil {
		return nil
	}
	out := make([]negotiation.PolicyConfiguration, len(policies))
	for i, p := range policies {
		out[i] = negotiation.PolicyConfiguration{
			ServiceOffering: p.ServiceOffering,
			Policy:          clonePolicyRules(p.Policy),
		}
	}
	return out
}

func clonePricingConfigurations(pricings []negotiation.PricingConfiguration) []negotiation.PricingConfiguration {
	if pricings == nil {
		return nil
	}
	out := make([]negotiation.PricingConfiguration, len(pricings))
	for i, p := range pricings {
		out[i] = p
		out[i].PricingModel = cloneStrings(p.PricingModel)
	}
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneExchange(conf exchange.Configuration) exchange.Configuration {
	out := conf
	out.ProviderPolicies = clonePolicyRules(conf.ProviderPolicies)
	return out
}

func cloneNegotiation(nego negotiation.EcosystemNegotiation) negotiation.EcosystemNegotiation {
	out := nego
	out.Policies = clonePolicyConfigurations(nego.Policies)
	out.Pricings = clonePricingConfigurations(nego.Pricings)
	return out
}

func cloneMemberOfferings(offerings []ecosystem.MemberOffering) []ecosystem.MemberOffering {
	if offerings == nil {
		return nil
	}
	out := make([]ecosystem.MemberOffering, len(offerings))
	for i, o := range offerings {
		out[i] = ecosystem.MemberOffering{
			ServiceOffering: o.ServiceOffering,
			Policy:          clonePolicyRules(o.Policy),
		}
		if o.Pricing != nil {
			pricing := *o.Pricing
			pricing.PricingModel = cloneStrings(o.Pricing.PricingModel)
			out[i].Pricing = &pricing
		}
	}
	return out
}

func cloneEcosystem(eco ecosystem.Ecosystem) ecosystem.Ecosystem {
	out := eco
	out.Participants = make([]ecosystem.Member, len(eco.Participants))
	for i, m := range eco.Participants {
		out.Participants[i] = ecosystem.Member{
			Participant: m.Participant,
			Offerings:   cloneMemberOfferings(m.Offerings),
			Roles:       cloneStrings(m.Roles),
		}
	}
	out.Invitations = make([]ecosystem.Invitation, len(eco.Invitations))
	for i, inv := range eco.Invitations {
		out.Invitations[i] = ecosystem.Invitation{
			Participant: inv.Participant,
			Roles:       cloneStrings(inv.Roles),
			Status:      inv.Status,
			Offerings:   cloneMemberOfferings(inv.Offerings),
		}
	}
	out.JoinRequests = make([]ecosystem.JoinRequest, len(eco.JoinRequests))
	for i, jr := range eco.JoinRequests {
		out.JoinRequests[i] = ecosystem.JoinRequest{
			Participant: jr.Participant,
			Roles:       cloneStrings(jr.Roles),
			Status:      jr.Status,
			Offerings:   cloneMemberOfferings(jr.Offerings),
		}
	}
	return out
}
