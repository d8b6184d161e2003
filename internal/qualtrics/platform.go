package qualtrics

import (
	"context"
	"fmt"
	"time"
)

// singleSMSPrefix names the throwaway mailing lists used for ad-hoc SMS.
const singleSMSPrefix = "SINGLESMS"

// Gateway exposes the manager operations the distribution pipelines need as
// flat methods over one Client.
type Gateway struct {
	client *Client
}

// NewGateway wraps c.
func NewGateway(c *Client) *Gateway {
	return &Gateway{client: c}
}

// Client returns the wrapped client.
func (g *Gateway) Client() *Client { return g.client }

// CreateMailingList creates a mailing list in the default directory.
func (g *Gateway) CreateMailingList(ctx context.Context, name string) (string, error) {
	lists, err := g.client.MailingLists()
	if err != nil {
		return "", err
	}
	return lists.Create(ctx, name)
}

// CreateTransactionBatch creates an empty transaction batch dated now.
func (g *Gateway) CreateTransactionBatch(ctx context.Context) (string, error) {
	batches, err := g.client.TransactionBatches()
	if err != nil {
		return "", err
	}
	return batches.Create(ctx, nil, time.Time{})
}

// StartImport starts a contact import into listID. Transaction fields are
// derived from the contacts.
func (g *Gateway) StartImport(ctx context.Context, listID string, contacts []Contact, batchID string) (string, error) {
	imports, err := g.client.ContactImports(listID)
	if err != nil {
		return "", err
	}
	return imports.StartImport(ctx, contacts, batchID, nil)
}

// ImportProgress returns the completion percentage of an import.
func (g *Gateway) ImportProgress(ctx context.Context, listID, importID string) (int, error) {
	imports, err := g.client.ContactImports(listID)
	if err != nil {
		return 0, err
	}
	return imports.Progress(ctx, importID)
}

// GenerateLinks creates an individual-link distribution.
func (g *Gateway) GenerateLinks(ctx context.Context, req LinkRequest) (string, error) {
	return g.client.Distributions().GenerateLinks(ctx, req)
}

// DistributionLinks lists the links of a link distribution.
func (g *Gateway) DistributionLinks(ctx context.Context, distributionID, surveyID string) ([]DistributionLink, error) {
	return g.client.Distributions().Links(ctx, distributionID, surveyID)
}

// SendEmail schedules an email distribution.
func (g *Gateway) SendEmail(ctx context.Context, d EmailDistribution) (string, error) {
	return g.client.Distributions().Send(ctx, d)
}

// SendSMS schedules a batch SMS distribution.
func (g *Gateway) SendSMS(ctx context.Context, d SMSDistribution) (string, error) {
	return g.client.SMSDistributions().Send(ctx, d)
}

// SendSingleSMS creates a mailing list holding only contact, then sends sms
// to it.
func (g *Gateway) SendSingleSMS(ctx context.Context, contact Contact, sms SingleSMS) (string, error) {
	lists, err := g.client.MailingLists()
	if err != nil {
		return "", err
	}
	listName := fmt.Sprintf("%s_%s_%s", singleSMSPrefix, contact.ExtRef, FormatTime(g.client.now(), true))
	listID, err := lists.Create(ctx, listName)
	if err != nil {
		return "", fmt.Errorf("create single sms list: %w", err)
	}

	members, err := g.client.MailingListContacts(listID)
	if err != nil {
		return "", err
	}
	if _, err := members.Create(ctx, contact); err != nil {
		return "", fmt.Errorf("add single sms contact: %w", err)
	}

	sms.MailingListID = listID
	return g.client.SMSDistributions().SendSingle(ctx, sms)
}

// EmailStats returns the counters of an email or link distribution.
func (g *Gateway) EmailStats(ctx context.Context, distributionID, surveyID string) (DistributionStats, error) {
	return g.client.Distributions().Stats(ctx, distributionID, surveyID)
}

// SMSStats returns the counters of an SMS distribution.
func (g *Gateway) SMSStats(ctx context.Context, distributionID, surveyID string) (DistributionStats, error) {
	return g.client.SMSDistributions().Stats(ctx, distributionID, surveyID)
}

// DistributionHistory returns the per-recipient history of a distribution.
func (g *Gateway) DistributionHistory(ctx context.Context, distributionID string) ([]HistoryEntry, error) {
	return g.client.Distributions().History(ctx, distributionID)
}

// ContactHistory returns the response history of a contact. The feed omits
// the contact id, so it is stamped on every entry.
func (g *Gateway) ContactHistory(ctx context.Context, contactID string) ([]HistoryEntry, error) {
	contacts, err := g.client.DirectoryContacts()
	if err != nil {
		return nil, err
	}
	entries, err := contacts.History(ctx, contactID, HistoryTypeResponse)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].ContactID = contactID
	}
	return entries, nil
}

// Surveys lists the survey catalog.
func (g *Gateway) Surveys(ctx context.Context) ([]Survey, error) {
	return g.client.Surveys().List(ctx, 0)
}

// Messages lists the library messages of one category.
func (g *Gateway) Messages(ctx context.Context, category string) ([]Message, error) {
	messages, err := g.client.Messages()
	if err != nil {
		return nil, err
	}
	return messages.List(ctx, category, 0, 0)
}
