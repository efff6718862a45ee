// Package ecosystem holds the orchestrated ecosystem roster: accepted
// members, pending invitations and join requests, and the ecosystem contract
// reference the reconciler injects policies into.
package ecosystem

import (
	"time"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
)

// RequestStatus is the state of an invitation or join request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "Pending"
	StatusAuthorized RequestStatus = "Authorized"
	StatusRejected   RequestStatus = "Rejected"
)

// OfferingPricing is the pricing sub-object attached to a member offering
// after reconciliation. Absent numeric fields default to 0, absent string and
// list fields to empty.
type OfferingPricing struct {
	Pricing            float64  `json:"pricing"`
	PricingModel       []string `json:"pricingModel"`
	PricingDescription string   `json:"pricingDescription"`
	Currency           string   `json:"currency"`
	BillingPeriod      string   `json:"billingPeriod"`
	CostPerAPICall     float64  `json:"costPerAPICall"`
	SetupFee           float64  `json:"setupFee"`
}

// MemberOffering is one service offering a member exposes to the ecosystem,
// with its negotiated policies and, when pricing terms were negotiated, the
// merged pricing bundle.
type MemberOffering struct {
	ServiceOffering string                   `json:"serviceOffering"`
	Policy          []negotiation.PolicyRule `json:"policy"`
	Pricing         *OfferingPricing         `json:"pricing,omitempty"`
}

// Member is an accepted participant of the ecosystem.
type Member struct {
	Participant string           `json:"participant"`
	Offerings   []MemberOffering `json:"offerings"`
	Roles       []string         `json:"roles"`
}

// Invitation is an orchestrator-issued invitation for a participant to join.
type Invitation struct {
	Participant string           `json:"participant"`
	Roles       []string         `json:"roles"`
	Status      RequestStatus    `json:"status"`
	Offerings   []MemberOffering `json:"offerings,omitempty"`
}

// JoinRequest is a participant-issued request to join.
type JoinRequest struct {
	Participant string           `json:"participant"`
	Roles       []string         `json:"roles"`
	Status      RequestStatus    `json:"status"`
	Offerings   []MemberOffering `json:"offerings,omitempty"`
}

// Ecosystem is an orchestrated multi-party data-sharing group.
type Ecosystem struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Orchestrator string        `json:"orchestrator"`
	Contract     string        `json:"contract,omitempty"`
	Participants []Member      `json:"participants"`
	Invitations  []Invitation  `json:"invitations"`
	JoinRequests []JoinRequest `json:"joinRequests"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Member returns the membership row for the participant, if any.
func (e *Ecosystem) Member(participantID string) *Member {
	for i := range e.Participants {
		if e.Participants[i].Participant == participantID {
			return &e.Participants[i]
		}
	}
	return nil
}

// PendingInvitation returns the pending invitation for the participant, if any.
func (e *Ecosystem) PendingInvitation(participantID string) *Invitation {
	for i := range e.Invitations {
		if e.Invitations[i].Participant == participantID && e.Invitations[i].Status == StatusPending {
			return &e.Invitations[i]
		}
	}
	return nil
}

// PendingJoinRequest returns the pending join request for the participant, if any.
func (e *Ecosystem) PendingJoinRequest(participantID string) *JoinRequest {
	for i := range e.JoinRequests {
		if e.JoinRequests[i].Participant == participantID && e.JoinRequests[i].Status == StatusPending {
			return &e.JoinRequests[i]
		}
	}
	return nil
}
