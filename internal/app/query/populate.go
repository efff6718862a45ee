// Package query builds read-side projections of negotiations with optional
// expansion of referenced documents.
package query

import (
	ecodomain "github.com/dataspace-foundry/negotiation/internal/app/domain/ecosystem"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/domain/participant"
)

// PopulateOption selects which referenced documents are expanded inline on a
// negotiation view.
type PopulateOption string

const (
	PopulateAll         PopulateOption = "all"
	PopulateParticipant PopulateOption = "participant"
	PopulateEcosystem   PopulateOption = "ecosystem"
	PopulateNone        PopulateOption = "none"
)

// NormalizePopulate maps a raw query value onto a PopulateOption. Unknown or
// empty values expand everything.
func NormalizePopulate(raw string) PopulateOption {
	switch PopulateOption(raw) {
	case PopulateParticipant, PopulateEcosystem, PopulateNone:
		return PopulateOption(raw)
	default:
		return PopulateAll
	}
}

// References carries the documents a view may embed. Nil fields are left as
// plain id references.
type References struct {
	Participant *participant.Participant
	Ecosystem   *ecodomain.Ecosystem
}

// NegotiationView is a negotiation with its references optionally expanded.
// Exactly one of the id and document fields is set per reference.
type NegotiationView struct {
	negotiation.EcosystemNegotiation
	ParticipantDoc *participant.Participant `json:"participantDetails,omitempty"`
	EcosystemDoc   *ecodomain.Ecosystem     `json:"ecosystemDetails,omitempty"`
}

// ProjectNegotiation builds the view for the requested populate option.
// References not covered by the option are dropped even when provided.
func ProjectNegotiation(nego negotiation.EcosystemNegotiation, refs References, option PopulateOption) NegotiationView {
	view := NegotiationView{EcosystemNegotiation: nego}
	if option == PopulateAll || option == PopulateParticipant {
		view.ParticipantDoc = refs.Participant
	}
	if option == PopulateAll || option == PopulateEcosystem {
		view.EcosystemDoc = refs.Ecosystem
	}
	return view
}
