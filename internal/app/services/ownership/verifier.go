// Package ownership verifies that a participant controls every service
// offering referenced by a negotiation proposal.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/dataspace-foundry/negotiation/internal/app/domain/negotiation"
	"github.com/dataspace-foundry/negotiation/internal/app/storage"
	apperrors "github.com/dataspace-foundry/negotiation/internal/errors"
	"github.com/dataspace-foundry/negotiation/pkg/logger"
)

// Verifier checks service offering ownership against the catalog. It is
// side-effect free; the check is all-or-nothing and runs before any
// negotiation state is persisted.
type Verifier struct {
	offerings storage.OfferingStore
	log       *logger.Logger
}

// New constructs an ownership verifier.
func New(offerings storage.OfferingStore, log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewDefault("ownership")
	}
	return &Verifier{offerings: offerings, log: log}
}

// VerifyOwnership confirms that every service offering referenced by the
// policy and pricing configurations is provided by the participant. A single
// unowned or unknown offering fails the whole batch.
func (v *Verifier) VerifyOwnership(ctx context.Context, participantID string, policies []negotiation.PolicyConfiguration, pricings []negotiation.PricingConfiguration) error {
	referenced := make([]string, 0, len(policies)+len(pricings))
	for _, p := range policies {
		referenced = append(referenced, p.ServiceOffering)
	}
	for _, p := range pricings {
		referenced = append(referenced, p.ServiceOffering)
	}

	for _, id := range referenced {
		off, err := v.offerings.GetServiceOffering(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.OwnershipViolation("Participant does not own all service offerings").
					WithDetails("serviceOffering", id)
			}
			return fmt.Errorf("offering lookup failed: %w", err)
		}
		if off.ProvidedBy != participantID {
			v.log.WithField("participant_id", participantID).
				WithField("service_offering", id).
				Warn("ownership check failed")
			return apperrors.OwnershipViolation("Participant does not own all service offerings").
				WithDetails("serviceOffering", id)
		}
	}
	return nil
}
