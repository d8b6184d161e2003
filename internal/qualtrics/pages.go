package qualtrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// PageIterator follows nextPage links lazily.
//
//	it := client.Pages("surveys", nil, 0)
//	for it.Next(ctx) {
//		for _, el := range it.Elements() { ... }
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	client   *Client
	path     string
	query    url.Values
	next     string
	maxPages int
	fetched  int
	elements []json.RawMessage
	err      error
}

// Pages returns an iterator over the pages of path. The initial query is
// encoded into the first URL and re-applied to every nextPage URL, which
// only carries the pagination parameters. maxPages <= 0 means no limit.
func (c *Client) Pages(path string, query url.Values, maxPages int) *PageIterator {
	first := strings.Trim(path, "/")
	if encoded := query.Encode(); encoded != "" {
		first += "?" + encoded
	}
	return &PageIterator{
		client:   c,
		path:     path,
		query:    query,
		next:     first,
		maxPages: maxPages,
	}
}

// Next fetches the following page. It returns false when pages are
// exhausted, the page limit is reached, or an error occurred.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.err != nil || it.next == "" {
		return false
	}
	if it.maxPages > 0 && it.fetched >= it.maxPages {
		return false
	}

	it.client.logger.DebugContext(ctx, "fetching page", "path", it.path, "page", it.fetched+1)
	env, err := it.client.Do(ctx, http.MethodGet, it.next, nil, nil)
	if err != nil {
		it.err = err
		return false
	}
	page, err := decodePage(it.path, env)
	if err != nil {
		it.err = err
		return false
	}

	it.fetched++
	it.elements = page.Elements
	it.next = ""
	if page.NextPage != nil && *page.NextPage != "" {
		it.next = withQuery(*page.NextPage, it.query)
	}
	return true
}

// withQuery adds the parameters of query missing from next. Parameters the
// server already set on next are kept as is.
func withQuery(next string, query url.Values) string {
	if len(query) == 0 {
		return next
	}
	u, err := url.Parse(next)
	if err != nil {
		return next
	}
	merged := u.Query()
	for key, values := range query {
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = append([]string(nil), values...)
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// Elements returns the elements of the current page.
func (it *PageIterator) Elements() []json.RawMessage { return it.elements }

// Err returns the first error encountered.
func (it *PageIterator) Err() error { return it.err }

// List collects every element of path.
func (c *Client) List(ctx context.Context, path string, query url.Values, maxPages int) ([]json.RawMessage, error) {
	it := c.Pages(path, query, maxPages)
	var out []json.RawMessage
	for it.Next(ctx) {
		out = append(out, it.Elements()...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAs collects every element of path decoded as T.
func ListAs[T any](ctx context.Context, c *Client, path string, query url.Values, maxPages int) ([]T, error) {
	raw, err := c.List(ctx, path, query, maxPages)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, el := range raw {
		var item T
		if err := json.Unmarshal(el, &item); err != nil {
			return nil, &DecodeError{Path: path, Detail: "unexpected element shape", Cause: err}
		}
		out = append(out, item)
	}
	return out, nil
}
