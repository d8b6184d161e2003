package qualtrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// resource is the shared list/get/create/update/delete surface of a manager
// bound to one path.
type resource struct {
	client *Client
	path   string
}

// bindPath fills a path template such as "directories/%s/mailinglists" with
// escaped scope identifiers.
func bindPath(template string, scopes ...string) (string, error) {
	args := make([]any, len(scopes))
	for i, scope := range scopes {
		if strings.TrimSpace(scope) == "" {
			return "", fmt.Errorf("%w for %q", ErrMissingScope, template)
		}
		args[i] = url.PathEscape(scope)
	}
	return fmt.Sprintf(template, args...), nil
}

func newResource(c *Client, template string, scopes ...string) (resource, error) {
	path, err := bindPath(template, scopes...)
	if err != nil {
		return resource{}, err
	}
	return resource{client: c, path: path}, nil
}

// Path returns the bound path of the manager.
func (r resource) Path() string { return r.path }

func (r resource) sub(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, r.path)
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return URLJoin(escaped...)
}

func (r resource) list(ctx context.Context, query url.Values, maxPages int) ([]json.RawMessage, error) {
	return r.client.List(ctx, r.path, query, maxPages)
}

func (r resource) get(ctx context.Context, id string, query url.Values, dst any) error {
	return r.client.GetInto(ctx, r.sub(id), query, dst)
}

func (r resource) create(ctx context.Context, body any) (string, error) {
	return r.client.Post(ctx, r.path, body)
}

func (r resource) update(ctx context.Context, id string, body any) error {
	return r.client.Put(ctx, r.sub(id), body)
}

func (r resource) delete(ctx context.Context, id string) error {
	return r.client.Delete(ctx, r.sub(id))
}
