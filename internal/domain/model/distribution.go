package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxDescriptionLen = 200

var (
	// ErrFallbackNotAllowed is returned when a fallback is requested for a fallback, or for a
	// distribution that already has one.
	ErrFallbackNotAllowed = errors.New("distribution cannot receive a fallback")
	// ErrNotDeletable is returned when a distribution has already produced remote effects.
	ErrNotDeletable = errors.New("distribution cannot be deleted")
)

// ContactMode selects the channel of a message distribution.
type ContactMode string

const (
	ContactModeEmail ContactMode = "email"
	ContactModeSMS   ContactMode = "sms"
)

// Valid reports whether the contact mode is supported.
func (m ContactMode) Valid() bool {
	return m == ContactModeEmail || m == ContactModeSMS
}

// Other returns the complementary channel, used for fallbacks.
func (m ContactMode) Other() ContactMode {
	if m == ContactModeSMS {
		return ContactModeEmail
	}
	return ContactModeSMS
}

// Label is the display name of the channel.
func (m ContactMode) Label() string {
	if m == ContactModeSMS {
		return "Sms"
	}
	return "Email"
}

// ParseContactMode normalizes a contact mode string and reports whether it is supported.
func ParseContactMode(value string) (ContactMode, bool) {
	mode := ContactMode(strings.ToLower(strings.TrimSpace(value)))
	return mode, mode.Valid()
}

// Target selects recipients by survey completion.
type Target string

const (
	TargetAll         Target = "all"
	TargetNotFinished Target = "not_finished"
	TargetFinished    Target = "finished"
)

// Valid reports whether the target is supported.
func (t Target) Valid() bool {
	switch t {
	case TargetAll, TargetNotFinished, TargetFinished:
		return true
	default:
		return false
	}
}

// ParseTarget normalizes a target string and reports whether it is supported.
func ParseTarget(value string) (Target, bool) {
	t := Target(strings.ToLower(strings.TrimSpace(value)))
	return t, t.Valid()
}

// RemoteRef is the identifier of a resource the remote platform created
// asynchronously. Once set it is never overwritten by a pipeline.
type RemoteRef struct {
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// IsSet reports whether the remote resource exists.
func (r RemoteRef) IsSet() bool { return r.ID != "" }

// Distribution carries the fields shared by link and message distributions.
type Distribution struct {
	ID          int64     `json:"id"          db:"id"`
	UID         uuid.UUID `json:"uid"         db:"uid"`
	Description string    `json:"description" db:"description"`
	ImportID    string    `json:"import_id"   db:"import_id"`
	Remote      RemoteRef `json:"remote"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
}

// ShortUID is the first eight hex characters of the UID. It names the
// remote mailing list and SMS distribution.
func (d Distribution) ShortUID() string {
	if d.UID == uuid.Nil {
		return ""
	}
	return strings.ReplaceAll(d.UID.String(), "-", "")[:8]
}

// String renders "(shortuid) description".
func (d Distribution) String() string {
	return "(" + d.ShortUID() + ") " + d.Description
}

// LinkDistribution generates one individual survey link per panelist of the selected panels.
type LinkDistribution struct {
	Distribution
	SurveyID       string     `json:"survey_id"                 db:"survey_id"`
	PanelIDs       []int64    `json:"panel_ids"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty" db:"expiration_date"`
	ListID         string     `json:"list_id"                   db:"list_id"`
}

// IsExpired reports whether the links stopped working at now.
func (d *LinkDistribution) IsExpired(now time.Time) bool {
	return d.ExpirationDate != nil && now.After(*d.ExpirationDate)
}

// CanDelete reports whether the distribution may still be removed. Once an
// expiration date is chosen the links may have been shared.
func (d *LinkDistribution) CanDelete() bool {
	return d.ExpirationDate == nil
}

// MessageDistribution sends an email or SMS to recipients of a link distribution.
type MessageDistribution struct {
	Distribution
	LinkDistributionID int64       `json:"link_distribution_id"  db:"link_distribution_id"`
	ContactMode        ContactMode `json:"contact_mode"          db:"contact_mode"`
	Target             Target      `json:"target"                db:"target"`
	SendDate           *time.Time  `json:"send_date,omitempty"   db:"send_date"`
	MessageID          string      `json:"message_id"            db:"message_id"`
	SubjectID          string      `json:"subject_id,omitempty"  db:"subject_id"`
	BatchID            string      `json:"batch_id"              db:"batch_id"`
	FallbackOf         *int64      `json:"fallback_of,omitempty" db:"fallback_of"`
	// FallbackID is the id of the fallback attached to this distribution, if any.
	FallbackID *int64 `json:"fallback_id,omitempty"`
}

// IsEmail reports whether the distribution is sent by email.
func (d *MessageDistribution) IsEmail() bool { return d.ContactMode == ContactModeEmail }

// IsSMS reports whether the distribution is sent by SMS.
func (d *MessageDistribution) IsSMS() bool { return d.ContactMode == ContactModeSMS }

// IsFallback reports whether the distribution covers recipients unreachable by its primary.
func (d *MessageDistribution) IsFallback() bool { return d.FallbackOf != nil }

// HasFallback reports whether a fallback is attached.
func (d *MessageDistribution) HasFallback() bool { return d.FallbackID != nil }

// CanAddFallback is false for a fallback and for a distribution that already has one.
func (d *MessageDistribution) CanAddFallback() bool {
	return !d.IsFallback() && !d.HasFallback()
}

// HasHistory reports whether a per-recipient response history is available.
// The platform keeps none for SMS.
func (d *MessageDistribution) HasHistory() bool {
	return d.Remote.IsSet() && d.IsEmail()
}

// CanDelete reports whether the distribution was never sent.
func (d *MessageDistribution) CanDelete() bool {
	return !d.Remote.IsSet()
}

// EffectiveSendDate is the parent's send date for a fallback and the own one otherwise.
func (d *MessageDistribution) EffectiveSendDate(parent *MessageDistribution) *time.Time {
	if d.IsFallback() && parent != nil {
		return parent.SendDate
	}
	return d.SendDate
}

// CreateLinkDistributionRequest represents a request to create a link distribution.
type CreateLinkDistributionRequest struct {
	Description    string     `json:"description"`
	SurveyID       string     `json:"survey_id"`
	PanelIDs       []int64    `json:"panel_ids"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// Validate validates the request fields.
func (r *CreateLinkDistributionRequest) Validate() error {
	if err := ValidateDescription(r.Description); err != nil {
		return err
	}
	if strings.TrimSpace(r.SurveyID) == "" {
		return errors.New("survey_id is required")
	}
	if len(r.PanelIDs) == 0 {
		return errors.New("at least one panel is required")
	}
	return nil
}

// CreateMessageDistributionRequest represents a request to create a message distribution.
type CreateMessageDistributionRequest struct {
	Description        string      `json:"description"`
	LinkDistributionID int64       `json:"link_distribution_id"`
	ContactMode        ContactMode `json:"contact_mode"`
	Target             Target      `json:"target"`
	MessageID          string      `json:"message_id"`
	SubjectID          string      `json:"subject_id,omitempty"`
	FallbackOf         *int64      `json:"fallback_of,omitempty"`
}

// Validate validates the request fields.
func (r *CreateMessageDistributionRequest) Validate() error {
	if err := ValidateDescription(r.Description); err != nil {
		return err
	}
	if r.LinkDistributionID <= 0 {
		return errors.New("link_distribution_id is required")
	}
	if !r.ContactMode.Valid() {
		return errors.New("contact_mode must be email or sms")
	}
	if !r.Target.Valid() {
		return errors.New("target must be all, not_finished or finished")
	}
	if strings.TrimSpace(r.MessageID) == "" {
		return errors.New("message_id is required")
	}
	if r.ContactMode == ContactModeEmail && strings.TrimSpace(r.SubjectID) == "" {
		return errors.New("subject_id is required for email")
	}
	return nil
}

// ValidateDescription checks a distribution description is present and short enough.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return errors.New("description must be 200 characters or fewer")
	}
	return nil
}
