package qualtrics

import (
	"context"
	"net/url"
	"time"
)

const smsMethodInvite = "Invite"

// SMSDistributions manages SMS distributions.
type SMSDistributions struct {
	resource
}

// SMSDistributions returns the SMS distribution manager.
func (c *Client) SMSDistributions() *SMSDistributions {
	return &SMSDistributions{resource: resource{client: c, path: "distributions/sms"}}
}

// SMSDistribution is an SMS invite sent to a transaction batch with a library message.
type SMSDistribution struct {
	Name      string
	SurveyID  string
	BatchID   string
	LibraryID string
	MessageID string
	SendDate  time.Time
}

// SingleSMS is an ad-hoc SMS with a free-text body sent to a mailing list.
type SingleSMS struct {
	Name          string
	SurveyID      string
	Message       string
	MailingListID string
	SendDate      time.Time
}

type smsLibraryMessage struct {
	MessageID string `json:"messageId"`
	LibraryID string `json:"libraryId"`
}

type smsTextMessage struct {
	MessageText string `json:"messageText"`
}

type listRecipients struct {
	MailingListID string `json:"mailingListId"`
}

type smsSpec struct {
	Name       string `json:"name"`
	SurveyID   string `json:"surveyId"`
	Method     string `json:"method"`
	Message    any    `json:"message"`
	SendDate   string `json:"sendDate"`
	Recipients any    `json:"recipients"`
}

// Spec builds the creation body.
func (s SMSDistribution) Spec() any {
	return smsSpec{
		Name:       s.Name,
		SurveyID:   s.SurveyID,
		Method:     smsMethodInvite,
		Message:    smsLibraryMessage{MessageID: s.MessageID, LibraryID: s.LibraryID},
		SendDate:   FormatTime(s.SendDate, true),
		Recipients: batchRecipients{TransactionBatchID: s.BatchID},
	}
}

// Spec builds the creation body.
func (s SingleSMS) Spec() any {
	return smsSpec{
		Name:       s.Name,
		SurveyID:   s.SurveyID,
		Method:     smsMethodInvite,
		Message:    smsTextMessage{MessageText: s.Message},
		SendDate:   FormatTime(s.SendDate, true),
		Recipients: listRecipients{MailingListID: s.MailingListID},
	}
}

// Send creates a batch SMS distribution and returns its id.
func (m *SMSDistributions) Send(ctx context.Context, s SMSDistribution) (string, error) {
	if s.LibraryID == "" {
		s.LibraryID = m.client.libraryID
	}
	if s.SendDate.IsZero() {
		s.SendDate = m.client.now()
	}
	return m.create(ctx, s.Spec())
}

// SendSingle creates a single-list SMS distribution and returns its id.
func (m *SMSDistributions) SendSingle(ctx context.Context, s SingleSMS) (string, error) {
	if s.SendDate.IsZero() {
		s.SendDate = m.client.now()
	}
	return m.create(ctx, s.Spec())
}

// Get returns an SMS distribution of surveyID.
func (m *SMSDistributions) Get(ctx context.Context, distID, surveyID string) (Distribution, error) {
	var dist Distribution
	err := m.get(ctx, distID, url.Values{"surveyId": {surveyID}}, &dist)
	return dist, err
}

// Stats returns the aggregate counters of an SMS distribution.
func (m *SMSDistributions) Stats(ctx context.Context, distID, surveyID string) (DistributionStats, error) {
	dist, err := m.Get(ctx, distID, surveyID)
	if err != nil {
		return nil, err
	}
	return dist.Stats, nil
}
