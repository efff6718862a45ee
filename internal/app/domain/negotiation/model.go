// Package negotiation holds the ecosystem negotiation record and the policy
// and pricing configuration value types shared across the negotiation flows.
package negotiation

import "time"

// Status is the lifecycle state of an ecosystem negotiation.
type Status string

const (
	StatusRequested   Status = "Requested"
	StatusNegotiation Status = "Negotiation"
	StatusAccepted    Status = "Accepted"
	StatusTerminated  Status = "Terminated"
)

// PolicyRule is a configured access rule: the rule uid from the registry plus
// the values for its requested fields.
type PolicyRule struct {
	RuleID string                 `json:"ruleId"`
	Values map[string]interface{} `json:"values"`
}

// PolicyConfiguration is the set of configured policies for one service
// offering.
type PolicyConfiguration struct {
	ServiceOffering string       `json:"serviceOffering"`
	Policy          []PolicyRule `json:"policy"`
}

// PricingConfiguration is the commercial terms proposed for one service
// offering. Policies and pricings are independent lists correlated only by
// ServiceOffering id.
type PricingConfiguration struct {
	ServiceOffering    string   `json:"serviceOffering"`
	PricingModel       []string `json:"pricingModel,omitempty"`
	PricingDescription string   `json:"pricingDescription"`
	Pricing            float64  `json:"pricing"`
	Currency           string   `json:"currency,omitempty"`
	BillingPeriod      string   `json:"billingPeriod,omitempty"`
	CostPerAPICall     float64  `json:"costPerAPICall,omitempty"`
	SetupFee           float64  `json:"setupFee,omitempty"`
}

// EcosystemNegotiation is a participant's group-join negotiation with an
// ecosystem orchestrator. At most one negotiation exists per
// (ecosystem, participant) pair.
type EcosystemNegotiation struct {
	ID               string                 `json:"id"`
	Ecosystem        string                 `json:"ecosystem"`
	Participant      string                 `json:"participant"`
	Policies         []PolicyConfiguration  `json:"policies"`
	Pricings         []PricingConfiguration `json:"pricings"`
	Status           Status                 `json:"status"`
	LatestNegotiator string                 `json:"latestNegotiator"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}
