package service

import (
	"strings"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// surveyLinkField is the transaction data key message templates read the
// individual link from.
const surveyLinkField = "survey_link"

// ContactFromProfile renders a panelist in the contact import format. Empty
// values are omitted and the phone number loses its leading "+".
func ContactFromProfile(p *model.Profile) qualtrics.Contact {
	embedded := map[string]any{
		"id":      p.Country + p.ESSID,
		"ess_id":  p.ESSID,
		"sex":     p.Sex,
		"country": p.Country,
		"panel":   p.Panel.Name,
	}
	for name, value := range p.Extra {
		embedded[name] = value
	}
	return qualtrics.Contact{
		ExtRef:       p.ExtRef(),
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Language:     p.Language,
		Unsubscribed: p.IsOptOut,
		Phone:        strings.TrimPrefix(p.Phone, "+"),
		EmbeddedData: embedded,
	}
}

// linkContacts serialises the panelists of links. Links whose profile was
// not loaded are skipped.
func linkContacts(links []*model.RecipientLink, withSurveyLink bool) []qualtrics.Contact {
	contacts := make([]qualtrics.Contact, 0, len(links))
	for _, l := range links {
		if l.Profile == nil {
			continue
		}
		c := ContactFromProfile(l.Profile)
		if withSurveyLink {
			c.TransactionData = map[string]string{surveyLinkField: l.URL}
		}
		contacts = append(contacts, c)
	}
	return contacts
}
