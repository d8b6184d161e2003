package qualtrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Survey link types accepted by email distributions.
const (
	LinkIndividual = "Individual"
	LinkAnonymous  = "Anonymous"
	LinkMultiple   = "Multiple"
)

// LinkTypes is the closed set of survey link types.
var LinkTypes = []string{LinkIndividual, LinkAnonymous, LinkMultiple}

// Email distribution defaults.
const (
	DefaultFromEmail          = "noreply@qemailserver.com"
	DefaultFromName           = "Qualtrics"
	DefaultReplyTo            = "noreply@qualtrics.com"
	DefaultLinkExpirationDays = 30

	createDistributionAction = "CreateDistribution"
)

// Distributions manages email distributions and individual link sets.
type Distributions struct {
	resource
}

// Distributions returns the distribution manager.
func (c *Client) Distributions() *Distributions {
	return &Distributions{resource: resource{client: c, path: "distributions"}}
}

// LinkRequest describes an individual-link generation. Exactly one of
// ListID and BatchID must be set.
type LinkRequest struct {
	SurveyID       string
	ExpirationDate time.Time
	Description    string
	ListID         string
	BatchID        string
}

type linkSpec struct {
	SurveyID           string  `json:"surveyId"`
	LinkType           string  `json:"linkType"`
	Description        string  `json:"description"`
	Action             string  `json:"action"`
	ExpirationDate     string  `json:"expirationDate"`
	MailingListID      *string `json:"mailingListId"`
	TransactionBatchID string  `json:"transactionBatchId,omitempty"`
}

// Spec builds the creation body of a link distribution.
func (r LinkRequest) Spec() (any, error) {
	if (r.ListID == "") == (r.BatchID == "") {
		return nil, ErrInvalidTarget
	}
	spec := linkSpec{
		SurveyID:       r.SurveyID,
		LinkType:       LinkIndividual,
		Description:    r.Description,
		Action:         createDistributionAction,
		ExpirationDate: FormatTime(r.ExpirationDate, false),
	}
	if r.ListID != "" {
		listID := r.ListID
		spec.MailingListID = &listID
	} else {
		spec.TransactionBatchID = r.BatchID
	}
	return spec, nil
}

// GenerateLinks creates an individual-link distribution and returns its id.
func (m *Distributions) GenerateLinks(ctx context.Context, req LinkRequest) (string, error) {
	spec, err := req.Spec()
	if err != nil {
		return "", err
	}
	return m.create(ctx, spec)
}

// EmailDistribution describes an email sent to a transaction batch.
type EmailDistribution struct {
	BatchID   string
	SurveyID  string
	SendDate  time.Time
	LibraryID string
	MessageID string
	SubjectID string

	FromEmail string
	FromName  string
	ReplyTo   string

	LinkType       string
	LinkExpiration time.Time
}

type emailHeader struct {
	FromEmail    string `json:"fromEmail"`
	FromName     string `json:"fromName"`
	ReplyToEmail string `json:"replyToEmail"`
	Subject      string `json:"subject"`
}

type libraryMessage struct {
	LibraryID string `json:"libraryId"`
	MessageID string `json:"messageId"`
}

type batchRecipients struct {
	TransactionBatchID string `json:"transactionBatchId"`
}

type surveyLink struct {
	SurveyID       string `json:"surveyId"`
	ExpirationDate string `json:"expirationDate"`
	Type           string `json:"type"`
}

// EmailDistributionSpec is the creation body of an email distribution.
type EmailDistributionSpec struct {
	Header     emailHeader     `json:"header"`
	Message    libraryMessage  `json:"message"`
	Recipients batchRecipients `json:"recipients"`
	SurveyLink surveyLink      `json:"surveyLink"`
	SendDate   string          `json:"sendDate"`
}

// WithDefaults fills the sender, link and date fields left empty.
func (d EmailDistribution) WithDefaults(now time.Time, libraryID string) EmailDistribution {
	if d.SendDate.IsZero() {
		d.SendDate = now
	}
	if d.LinkExpiration.IsZero() {
		d.LinkExpiration = d.SendDate.AddDate(0, 0, DefaultLinkExpirationDays)
	}
	if d.LibraryID == "" {
		d.LibraryID = libraryID
	}
	if d.FromEmail == "" {
		d.FromEmail = DefaultFromEmail
	}
	if d.FromName == "" {
		d.FromName = DefaultFromName
	}
	if d.ReplyTo == "" {
		d.ReplyTo = DefaultReplyTo
	}
	if d.LinkType == "" {
		d.LinkType = LinkIndividual
	}
	return d
}

// Spec validates the link type and builds the request body.
func (d EmailDistribution) Spec() (EmailDistributionSpec, error) {
	if !validLinkType(d.LinkType) {
		return EmailDistributionSpec{}, fmt.Errorf("%w: %q (possible choices are %s)",
			ErrInvalidLinkType, d.LinkType, strings.Join(LinkTypes, ", "))
	}
	return EmailDistributionSpec{
		Header: emailHeader{
			FromEmail:    d.FromEmail,
			FromName:     d.FromName,
			ReplyToEmail: d.ReplyTo,
			Subject:      d.SubjectID,
		},
		Message: libraryMessage{
			LibraryID: d.LibraryID,
			MessageID: d.MessageID,
		},
		Recipients: batchRecipients{TransactionBatchID: d.BatchID},
		SurveyLink: surveyLink{
			SurveyID:       d.SurveyID,
			ExpirationDate: FormatTime(d.LinkExpiration, true),
			Type:           d.LinkType,
		},
		SendDate: FormatTime(d.SendDate, true),
	}, nil
}

func validLinkType(t string) bool {
	for _, lt := range LinkTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// Send creates an email distribution to a transaction batch and returns its id.
func (m *Distributions) Send(ctx context.Context, d EmailDistribution) (string, error) {
	spec, err := d.WithDefaults(m.client.now(), m.client.libraryID).Spec()
	if err != nil {
		return "", err
	}
	return m.create(ctx, spec)
}

// Get returns a distribution of surveyID.
func (m *Distributions) Get(ctx context.Context, distID, surveyID string) (Distribution, error) {
	var dist Distribution
	err := m.get(ctx, distID, url.Values{"surveyId": {surveyID}}, &dist)
	return dist, err
}

// Stats returns the aggregate counters of a distribution.
func (m *Distributions) Stats(ctx context.Context, distID, surveyID string) (DistributionStats, error) {
	dist, err := m.Get(ctx, distID, surveyID)
	if err != nil {
		return nil, err
	}
	return dist.Stats, nil
}

// Links returns the individual links generated by a distribution.
func (m *Distributions) Links(ctx context.Context, distID, surveyID string) ([]DistributionLink, error) {
	return ListAs[DistributionLink](ctx, m.client, m.sub(distID, "links"), url.Values{"surveyId": {surveyID}}, 0)
}

// History returns the per-recipient history feed of a distribution.
func (m *Distributions) History(ctx context.Context, distID string) ([]HistoryEntry, error) {
	return ListAs[HistoryEntry](ctx, m.client, m.sub(distID, "history"), nil, 0)
}

// List returns the distributions of a survey, optionally narrowed to a mailing list.
func (m *Distributions) List(ctx context.Context, surveyID, listID string) ([]Distribution, error) {
	query := url.Values{"surveyId": {surveyID}}
	if listID != "" {
		query.Set("mailingListId", listID)
	}
	return ListAs[Distribution](ctx, m.client, m.path, query, 0)
}

// Delete removes a distribution.
func (m *Distributions) Delete(ctx context.Context, distID string) error {
	return m.delete(ctx, distID)
}
