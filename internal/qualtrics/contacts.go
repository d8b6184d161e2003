package qualtrics

import (
	"context"
	"net/url"
	"strconv"
)

// History types accepted by the directory contact history endpoint.
const (
	HistoryTypeEmail    = "email"
	HistoryTypeResponse = "response"
)

// MailingLists manages the mailing lists of the default directory.
type MailingLists struct {
	resource
}

// MailingLists returns the mailing-list manager.
func (c *Client) MailingLists() (*MailingLists, error) {
	r, err := newResource(c, "directories/%s/mailinglists", c.directoryID)
	if err != nil {
		return nil, err
	}
	return &MailingLists{resource: r}, nil
}

// Create creates an empty mailing list and returns its id.
func (m *MailingLists) Create(ctx context.Context, name string) (string, error) {
	return m.create(ctx, map[string]string{"name": name})
}

// List returns every mailing list of the directory.
func (m *MailingLists) List(ctx context.Context, maxPages int) ([]MailingList, error) {
	return ListAs[MailingList](ctx, m.client, m.path, nil, maxPages)
}

// Delete removes a mailing list.
func (m *MailingLists) Delete(ctx context.Context, listID string) error {
	return m.delete(ctx, listID)
}

// MailingListContacts manages the contacts of one mailing list.
type MailingListContacts struct {
	resource
}

// MailingListContacts binds the contact manager to listID.
func (c *Client) MailingListContacts(listID string) (*MailingListContacts, error) {
	r, err := newResource(c, "directories/%s/mailinglists/%s/contacts", c.directoryID, listID)
	if err != nil {
		return nil, err
	}
	return &MailingListContacts{resource: r}, nil
}

// List returns the contacts of the list using the new pagination scheme.
func (m *MailingListContacts) List(ctx context.Context, pageSize, maxPages int) ([]Contact, error) {
	if pageSize <= 0 {
		pageSize = MaxPageSize
	}
	query := url.Values{
		"useNewPaginationScheme": {"true"},
		"pageSize":               {strconv.Itoa(pageSize)},
	}
	return ListAs[Contact](ctx, m.client, m.path, query, maxPages)
}

// Create adds one contact to the list and returns its contact id.
func (m *MailingListContacts) Create(ctx context.Context, contact Contact) (string, error) {
	return m.create(ctx, contact)
}

// DirectoryContacts manages the contacts of the default directory.
type DirectoryContacts struct {
	resource
}

// DirectoryContacts returns the directory contact manager.
func (c *Client) DirectoryContacts() (*DirectoryContacts, error) {
	r, err := newResource(c, "directories/%s/contacts", c.directoryID)
	if err != nil {
		return nil, err
	}
	return &DirectoryContacts{resource: r}, nil
}

// List returns directory contacts.
func (m *DirectoryContacts) List(ctx context.Context, pageSize, maxPages int) ([]Contact, error) {
	if pageSize <= 0 {
		pageSize = MaxPageSize
	}
	return ListAs[Contact](ctx, m.client, m.path, url.Values{"pageSize": {strconv.Itoa(pageSize)}}, maxPages)
}

// Get returns one directory contact.
func (m *DirectoryContacts) Get(ctx context.Context, contactID string) (Contact, error) {
	var contact Contact
	err := m.get(ctx, contactID, nil, &contact)
	return contact, err
}

// Transactions lists the transactions recorded for a contact.
func (m *DirectoryContacts) Transactions(ctx context.Context, contactID string, pageSize int) ([]map[string]any, error) {
	if pageSize <= 0 {
		pageSize = MaxPageSize
	}
	return ListAs[map[string]any](ctx, m.client, m.sub(contactID, "transactions"),
		url.Values{"pageSize": {strconv.Itoa(pageSize)}}, 0)
}

// History lists the email or response history of a contact.
func (m *DirectoryContacts) History(ctx context.Context, contactID, historyType string) ([]HistoryEntry, error) {
	if historyType == "" {
		historyType = HistoryTypeEmail
	}
	return ListAs[HistoryEntry](ctx, m.client, m.sub(contactID, "history"),
		url.Values{"type": {historyType}}, 0)
}

// Directories lists XM directories. Qualtrics exposes no other operation on them.
type Directories struct {
	resource
}

// Directories returns the directory manager.
func (c *Client) Directories() *Directories {
	return &Directories{resource: resource{client: c, path: "directories"}}
}

// List returns directories, always using the new pagination scheme.
func (m *Directories) List(ctx context.Context, query url.Values, maxPages int) ([]Directory, error) {
	merged := url.Values{}
	for k, v := range query {
		merged[k] = append([]string(nil), v...)
	}
	merged.Set("useNewPaginationScheme", "true")
	return ListAs[Directory](ctx, m.client, m.path, merged, maxPages)
}
