package model

import (
	"strings"

	"github.com/google/uuid"
)

// Panel groups panelists of one country panel.
type Panel struct {
	ID   int64  `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}

// Profile is a panelist as served by the recipient source.
type Profile struct {
	ID        int64             `json:"id"                db:"id"`
	UID       uuid.UUID         `json:"uid"               db:"uid"`
	ESSID     string            `json:"ess_id"            db:"ess_id"`
	Country   string            `json:"country"           db:"country"`
	FirstName string            `json:"first_name"        db:"first_name"`
	LastName  string            `json:"last_name"         db:"last_name"`
	Email     string            `json:"email"             db:"email"`
	Phone     string            `json:"phone"             db:"phone"`
	Language  string            `json:"language"          db:"language"`
	Sex       string            `json:"sex"               db:"sex"`
	Panel     Panel             `json:"panel"`
	IsOptOut  bool              `json:"is_opt_out"        db:"is_opt_out"`
	NoEmail   bool              `json:"no_email"          db:"no_email"`
	NoText    bool              `json:"no_text"           db:"no_text"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ExtRef is the external data reference the remote platform echoes back
// on generated links: the UID as 32 hex characters.
func (p *Profile) ExtRef() string {
	return strings.ReplaceAll(p.UID.String(), "-", "")
}

// FullName joins first and last name.
func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// CanReceiveEmail reports whether the panelist is reachable by email. With
// only set, the panelist must not be reachable by SMS as well.
func (p *Profile) CanReceiveEmail(only bool) bool {
	if p.IsOptOut || p.Email == "" || p.NoEmail {
		return false
	}
	return !only || !p.CanReceiveSMS(false)
}

// CanReceiveSMS reports whether the panelist is reachable by SMS. With only
// set, the panelist must not be reachable by email as well.
func (p *Profile) CanReceiveSMS(only bool) bool {
	if p.IsOptOut || p.Phone == "" || p.NoText {
		return false
	}
	return !only || !p.CanReceiveEmail(false)
}

// CanReceive dispatches on the contact mode.
func (p *Profile) CanReceive(mode ContactMode, only bool) bool {
	if mode == ContactModeEmail {
		return p.CanReceiveEmail(only)
	}
	return p.CanReceiveSMS(only)
}
