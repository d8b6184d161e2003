package qualtrics

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Message library categories accepted as list filters.
const (
	CategoryEmailInvite  = "invite"
	CategoryEmailSubject = "emailSubject"
	CategorySMSInvite    = "smsInvite"
)

// MessageCategories is the closed set of category filters.
var MessageCategories = []string{CategoryEmailInvite, CategoryEmailSubject, CategorySMSInvite}

// Messages manages the messages of the default library.
type Messages struct {
	resource
}

// Messages returns the message library manager.
func (c *Client) Messages() (*Messages, error) {
	r, err := newResource(c, "libraries/%s/messages", c.libraryID)
	if err != nil {
		return nil, err
	}
	return &Messages{resource: r}, nil
}

// List returns library messages, optionally filtered by category.
func (m *Messages) List(ctx context.Context, category string, offset, maxPages int) ([]Message, error) {
	query := url.Values{"offset": {strconv.Itoa(offset)}}
	if category != "" {
		valid := false
		for _, c := range MessageCategories {
			if c == category {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: category must be one of %s", ErrInvalidCategory, strings.Join(MessageCategories, ", "))
		}
		query.Set("category", category)
	}
	return ListAs[Message](ctx, m.client, m.path, query, maxPages)
}

// Surveys manages the survey catalog.
type Surveys struct {
	resource
}

// Surveys returns the survey manager.
func (c *Client) Surveys() *Surveys {
	return &Surveys{resource: resource{client: c, path: "surveys"}}
}

// List returns every survey visible to the API user.
func (m *Surveys) List(ctx context.Context, maxPages int) ([]Survey, error) {
	return ListAs[Survey](ctx, m.client, m.path, nil, maxPages)
}

// Get returns one survey definition.
func (m *Surveys) Get(ctx context.Context, surveyID string) (Survey, error) {
	var s Survey
	err := m.get(ctx, surveyID, nil, &s)
	return s, err
}

// TransactionBatches manages transaction batches of the default directory.
type TransactionBatches struct {
	resource
}

// TransactionBatches returns the transaction batch manager.
func (c *Client) TransactionBatches() (*TransactionBatches, error) {
	r, err := newResource(c, "directories/%s/transactionbatches", c.directoryID)
	if err != nil {
		return nil, err
	}
	return &TransactionBatches{resource: r}, nil
}

type batchSpec struct {
	TransactionIDs []string `json:"transactionIds"`
	CreatedDate    string   `json:"createdDate"`
}

// Create creates a batch, empty unless transactionIDs are given. A zero
// createdAt means now.
func (m *TransactionBatches) Create(ctx context.Context, transactionIDs []string, createdAt time.Time) (string, error) {
	if transactionIDs == nil {
		transactionIDs = []string{}
	}
	if createdAt.IsZero() {
		createdAt = m.client.now()
	}
	return m.create(ctx, batchSpec{
		TransactionIDs: transactionIDs,
		CreatedDate:    FormatTime(createdAt, true),
	})
}

// Transactions lists the transactions of a batch.
func (m *TransactionBatches) Transactions(ctx context.Context, batchID string, pageSize int) ([]map[string]any, error) {
	if pageSize <= 0 {
		pageSize = MaxPageSize
	}
	return ListAs[map[string]any](ctx, m.client, m.sub(batchID, "transactions"),
		url.Values{"pageSize": {strconv.Itoa(pageSize)}}, 0)
}

// Delete removes a batch.
func (m *TransactionBatches) Delete(ctx context.Context, batchID string) error {
	return m.delete(ctx, batchID)
}

// Transactions manages the transactions of the default directory.
type Transactions struct {
	resource
}

// Transactions returns the transaction manager.
func (c *Client) Transactions() (*Transactions, error) {
	r, err := newResource(c, "directories/%s/transactions", c.directoryID)
	if err != nil {
		return nil, err
	}
	return &Transactions{resource: r}, nil
}

// List returns transactions.
func (m *Transactions) List(ctx context.Context, maxPages int) ([]map[string]any, error) {
	return ListAs[map[string]any](ctx, m.client, m.path, nil, maxPages)
}

// Get returns one transaction.
func (m *Transactions) Get(ctx context.Context, transactionID string) (map[string]any, error) {
	out := map[string]any{}
	err := m.get(ctx, transactionID, nil, &out)
	return out, err
}

// Create creates transactions from a body keyed by transaction name.
func (m *Transactions) Create(ctx context.Context, body map[string]any) (string, error) {
	return m.create(ctx, body)
}

// Update replaces the data of a transaction.
func (m *Transactions) Update(ctx context.Context, transactionID string, body map[string]any) error {
	return m.update(ctx, transactionID, body)
}

// Delete removes a transaction.
func (m *Transactions) Delete(ctx context.Context, transactionID string) error {
	return m.delete(ctx, transactionID)
}
