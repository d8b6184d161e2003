package qualtrics

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/poll"
)

// ContactImports manages transaction-contact imports into one mailing list.
type ContactImports struct {
	resource
}

// ContactImports binds the import manager to listID in the default directory.
func (c *Client) ContactImports(listID string) (*ContactImports, error) {
	r, err := newResource(c, "directories/%s/mailinglists/%s/transactioncontacts", c.directoryID, listID)
	if err != nil {
		return nil, err
	}
	return &ContactImports{resource: r}, nil
}

type transactionMeta struct {
	BatchID string   `json:"batchId"`
	Fields  []string `json:"fields"`
}

type importRequest struct {
	Contacts        []Contact        `json:"contacts"`
	TransactionMeta *transactionMeta `json:"transactionMeta,omitempty"`
}

// StartImport submits contacts and returns the import job id. An empty
// contact list is rejected with a *ClientError before any request is made.
// With a batchID and no explicit fields, the transaction fields are the
// union of every contact's transactionData keys.
func (m *ContactImports) StartImport(ctx context.Context, contacts []Contact, batchID string, fields []string) (string, error) {
	if len(contacts) == 0 {
		return "", emptyContactListError()
	}
	req := importRequest{Contacts: contacts}
	if batchID != "" {
		if fields == nil {
			fields = TransactionFields(contacts)
		}
		req.TransactionMeta = &transactionMeta{BatchID: batchID, Fields: fields}
	}
	return m.create(ctx, req)
}

// TransactionFields returns the sorted union of transactionData keys.
func TransactionFields(contacts []Contact) []string {
	seen := make(map[string]struct{})
	for _, c := range contacts {
		for key := range c.TransactionData {
			seen[key] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for key := range seen {
		fields = append(fields, key)
	}
	sort.Strings(fields)
	return fields
}

// Stats returns the status object of an import job.
func (m *ContactImports) Stats(ctx context.Context, importID string) (ImportStatus, error) {
	raw, err := m.client.Get(ctx, m.sub(importID), nil)
	if err != nil {
		return ImportStatus{}, err
	}
	var status ImportStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return ImportStatus{}, &DecodeError{Path: m.sub(importID), Detail: "unexpected import status", Cause: err}
	}
	status.Raw = raw
	return status, nil
}

// Progress returns the completion percentage of an import job.
func (m *ContactImports) Progress(ctx context.Context, importID string) (int, error) {
	status, err := m.Stats(ctx, importID)
	if err != nil {
		return 0, err
	}
	return status.Progress(), nil
}

// WaitUntilComplete polls Stats until the job reports "complete". maxTries
// of zero means no bound.
func (m *ContactImports) WaitUntilComplete(ctx context.Context, importID string, step time.Duration, maxTries int) (ImportStatus, error) {
	opts := []poll.Option{poll.WithInterval(step), poll.WithLogger(m.client.logger)}
	if maxTries != 0 {
		opts = append(opts, poll.WithMaxAttempts(maxTries))
	}
	return poll.Until(ctx,
		func(ctx context.Context) (ImportStatus, error) { return m.Stats(ctx, importID) },
		ImportStatus.Complete,
		opts...,
	)
}
