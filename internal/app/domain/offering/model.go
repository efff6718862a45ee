// Package offering holds the catalog service offering referenced by
// negotiations.
package offering

import "time"

// ServiceOffering is a catalog entry a participant provides, subject to
// access policy.
type ServiceOffering struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	ProvidedBy string    `json:"providedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
