package core

import (
	"context"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// SurveyPlatform is the subset of the remote survey platform the
// distribution pipelines and lookups use.
type SurveyPlatform interface {
	CreateMailingList(ctx context.Context, name string) (string, error)
	CreateTransactionBatch(ctx context.Context) (string, error)
	// StartImport imports contacts into a mailing list, attaching them to
	// batchID as transactions when it is not empty.
	StartImport(ctx context.Context, listID string, contacts []qualtrics.Contact, batchID string) (string, error)
	ImportProgress(ctx context.Context, listID, importID string) (int, error)

	GenerateLinks(ctx context.Context, req qualtrics.LinkRequest) (string, error)
	DistributionLinks(ctx context.Context, distributionID, surveyID string) ([]qualtrics.DistributionLink, error)
	SendEmail(ctx context.Context, d qualtrics.EmailDistribution) (string, error)
	SendSMS(ctx context.Context, d qualtrics.SMSDistribution) (string, error)
	// SendSingleSMS sends a free-text SMS to one contact through a
	// dedicated mailing list; sms.MailingListID is ignored.
	SendSingleSMS(ctx context.Context, contact qualtrics.Contact, sms qualtrics.SingleSMS) (string, error)

	EmailStats(ctx context.Context, distributionID, surveyID string) (qualtrics.DistributionStats, error)
	SMSStats(ctx context.Context, distributionID, surveyID string) (qualtrics.DistributionStats, error)
	DistributionHistory(ctx context.Context, distributionID string) ([]qualtrics.HistoryEntry, error)
	// ContactHistory returns the response history of a directory contact.
	ContactHistory(ctx context.Context, contactID string) ([]qualtrics.HistoryEntry, error)

	Surveys(ctx context.Context) ([]qualtrics.Survey, error)
	Messages(ctx context.Context, category string) ([]qualtrics.Message, error)
}
