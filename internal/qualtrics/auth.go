package qualtrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const apiTokenHeader = "X-API-TOKEN"

// OAuthConfig enables the client-credentials grant instead of a static API token.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// TokenURL defaults to https://<host>/oauth2/token.
	TokenURL string
}

// apiTokenTransport stamps the static API token on every request.
type apiTokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *apiTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set(apiTokenHeader, t.token)
	return t.base.RoundTrip(clone)
}

// normalizeHost turns the configured domain into an ASCII host. A bare
// datacenter id such as "fra1" becomes "fra1.qualtrics.com".
func normalizeHost(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.Trim(domain, "/")
	if domain == "" {
		return "", errors.New("qualtrics domain is required")
	}
	if !strings.Contains(domain, ".") {
		domain += ".qualtrics.com"
	}
	host, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("normalize qualtrics domain %q: %w", domain, err)
	}
	return host, nil
}

// authenticatedClient wraps base with the configured credentials.
func authenticatedClient(base *http.Client, host string, cfg Config) (*http.Client, error) {
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	if cfg.OAuth != nil && cfg.OAuth.ClientID != "" {
		tokenURL := cfg.OAuth.TokenURL
		if tokenURL == "" {
			tokenURL = "https://" + host + "/oauth2/token"
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
			Transport: transport,
			Timeout:   base.Timeout,
		})
		return &http.Client{
			Transport: &oauth2.Transport{
				Source: cc.TokenSource(ctx),
				Base:   transport,
			},
			Timeout: base.Timeout,
		}, nil
	}

	token := strings.TrimSpace(cfg.APIKey)
	if token == "" {
		return nil, errors.New("qualtrics api key or oauth client credentials are required")
	}
	return &http.Client{
		Transport: &apiTokenTransport{token: token, base: transport},
		Timeout:   base.Timeout,
	}, nil
}
