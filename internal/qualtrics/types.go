package qualtrics

import "encoding/json"

// Contact is one entry of a transaction-contact import or a mailing-list contact.
type Contact struct {
	ExtRef          string            `json:"extRef,omitempty"`
	FirstName       string            `json:"firstName,omitempty"`
	LastName        string            `json:"lastName,omitempty"`
	Email           string            `json:"email,omitempty"`
	Language        string            `json:"language,omitempty"`
	Unsubscribed    bool              `json:"unsubscribed"`
	Phone           string            `json:"phone,omitempty"`
	EmbeddedData    map[string]any    `json:"embeddedData,omitempty"`
	TransactionData map[string]string `json:"transactionData,omitempty"`
}

// ImportStatus is the progress report of a contact import job.
type ImportStatus struct {
	Status          string          `json:"status"`
	PercentComplete float64         `json:"percentComplete"`
	Raw             json.RawMessage `json:"-"`
}

// Progress returns the completion percentage truncated to an integer.
func (s ImportStatus) Progress() int { return int(s.PercentComplete) }

// Complete reports whether the import finished.
func (s ImportStatus) Complete() bool { return s.Status == "complete" }

// DistributionLink is one generated individual link.
type DistributionLink struct {
	ContactID             string `json:"contactId"`
	TransactionID         string `json:"transactionId,omitempty"`
	Link                  string `json:"link"`
	ExternalDataReference string `json:"externalDataReference"`
	Email                 string `json:"email,omitempty"`
	FirstName             string `json:"firstName,omitempty"`
	LastName              string `json:"lastName,omitempty"`
	LinkExpiration        string `json:"linkExpiration,omitempty"`
	Status                string `json:"status,omitempty"`
	Unsubscribed          bool   `json:"unsubscribed,omitempty"`
}

// HistoryEntry is one per-recipient record of a distribution or contact history feed.
type HistoryEntry struct {
	ContactID           string `json:"contactId"`
	ContactLookupID     string `json:"contactLookupId,omitempty"`
	DistributionID      string `json:"distributionId,omitempty"`
	SurveyID            string `json:"surveyId,omitempty"`
	SurveySessionID     string `json:"surveySessionId,omitempty"`
	ResponseID          string `json:"responseId,omitempty"`
	Status              string `json:"status"`
	SentAt              string `json:"sentAt,omitempty"`
	OpenedAt            string `json:"openedAt,omitempty"`
	ResponseStartedAt   string `json:"responseStartedAt,omitempty"`
	ResponseCompletedAt string `json:"responseCompletedAt,omitempty"`
}

// DistributionStats holds the aggregate counters of a distribution. Keys
// differ between email (sent, failed, started, bounced, opened, skipped,
// finished, complaints, blocked) and SMS (sent, started, finished, failed,
// credits).
type DistributionStats map[string]float64

// Distribution is the subset of a distribution resource the pipelines read.
type Distribution struct {
	ID                   string            `json:"id"`
	ParentDistributionID string            `json:"parentDistributionId,omitempty"`
	OwnerID              string            `json:"ownerId,omitempty"`
	RequestType          string            `json:"requestType,omitempty"`
	RequestStatus        string            `json:"requestStatus,omitempty"`
	SendDate             string            `json:"sendDate,omitempty"`
	CreatedDate          string            `json:"createdDate,omitempty"`
	ModifiedDate         string            `json:"modifiedDate,omitempty"`
	Stats                DistributionStats `json:"stats,omitempty"`
}

// Survey is an entry of the survey catalog.
type Survey struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OwnerID      string `json:"ownerId,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	IsActive     bool   `json:"isActive"`
}

// Message is an entry of a message library.
type Message struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// MailingList is an entry of a directory's mailing lists.
type MailingList struct {
	ID   string `json:"mailingListId"`
	Name string `json:"name"`
}

// Directory is an XM directory.
type Directory struct {
	ID   string `json:"directoryId"`
	Name string `json:"name"`
}
