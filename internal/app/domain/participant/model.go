// Package participant holds the platform participant identity record.
package participant

import "time"

// Participant is an organization registered on the data-exchange platform.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	DID       string    `json:"did,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
