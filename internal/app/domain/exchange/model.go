// Package exchange holds the bilateral exchange configuration record.
package exchange

import (
	"time"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
)

// Status is the lifecycle state of a bilateral negotiation.
type Status string

const (
	StatusRequested      Status = "Requested"
	StatusAuthorized     Status = "Authorized"
	StatusNegotiation    Status = "Negotiation"
	StatusSignatureReady Status = "SignatureReady"
	StatusSigned         Status = "Signed"
)

// Signatures holds the dual-signature handshake state. The bilateral contract
// is final only once both parties have signed.
type Signatures struct {
	Provider string `json:"provider,omitempty"`
	Consumer string `json:"consumer,omitempty"`
}

// BothPresent reports whether the signature quorum is reached.
func (s Signatures) BothPresent() bool {
	return s.Provider != "" && s.Consumer != ""
}

// Configuration is a bilateral data-access negotiation record between a
// provider and a consumer over one offering pair. It is unique per
// (provider, consumer, providerServiceOffering, consumerServiceOffering).
type Configuration struct {
	ID                      string                   `json:"id"`
	Provider                string                   `json:"provider"`
	Consumer                string                   `json:"consumer"`
	ProviderServiceOffering string                   `json:"providerServiceOffering"`
	ConsumerServiceOffering string                   `json:"consumerServiceOffering"`
	NegotiationStatus       Status                   `json:"negotiationStatus"`
	ProviderPolicies        []negotiation.PolicyRule `json:"providerPolicies"`
	Contract                string                   `json:"contract,omitempty"`
	Signatures              Signatures               `json:"signatures"`
	// PoliciesInjected records that the one-time policy injection into the
	// bilateral contract has fired. Written atomically with the signature
	// that completes the quorum so a retried sign call cannot re-inject.
	PoliciesInjected bool      `json:"policiesInjected"`
	LatestNegotiator string    `json:"latestNegotiator,omitempty"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// InvolvesParticipant reports whether the participant is a party to the
// configuration.
func (c Configuration) InvolvesParticipant(participantID string) bool {
	return c.Provider == participantID || c.Consumer == participantID
}
