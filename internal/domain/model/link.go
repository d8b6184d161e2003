package model

import "github.com/google/uuid"

// RecipientLink records that a link was intended for a panelist. It is
// created empty when the recipient set is frozen, then filled once from the
// generated remote links.
type RecipientLink struct {
	ID             int64     `json:"id"              db:"id"`
	DistributionID int64     `json:"distribution_id" db:"distribution_id"`
	ProfileID      uuid.UUID `json:"profile_id"      db:"profile_id"`
	ContactID      string    `json:"contact_id"      db:"contact_id"`
	URL            string    `json:"url"             db:"url"`
	// Profile is populated by repository reads that join the recipient source.
	Profile *Profile `json:"profile,omitempty"`
}

// Complete reports whether the remote counterpart has been recorded.
func (l *RecipientLink) Complete() bool {
	return l.ContactID != "" && l.URL != ""
}
