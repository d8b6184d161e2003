package config

import (
	"strings"
	"time"
)

// QualtricsConfig contains the remote platform credentials and scopes.
type QualtricsConfig struct {
	// Domain is the datacenter id ("fra1") or the full brand host.
	Domain  string `env:"DOMAIN"`
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`

	DirectoryID string `env:"DIRECTORY_ID"`
	LibraryID   string `env:"LIBRARY_ID"`
	// SendSurveyID is the survey email and SMS distributions are attached to.
	SendSurveyID string `env:"SEND_SURVEY_ID"`

	// Client-credentials grant; used instead of APIKey when ClientID is set.
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"        envDefault:"manage:all"`
	TokenURL     string   `env:"TOKEN_URL"`

	FromEmail string `env:"FROM_EMAIL"`
	FromName  string `env:"FROM_NAME"`
	ReplyTo   string `env:"REPLY_TO"`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Sanitize trims identifiers and clamps the request timeout.
func (c *QualtricsConfig) Sanitize() {
	for _, s := range []*string{
		&c.Domain, &c.BaseURL, &c.APIKey, &c.DirectoryID, &c.LibraryID,
		&c.SendSurveyID, &c.ClientID, &c.ClientSecret, &c.TokenURL,
	} {
		*s = strings.TrimSpace(*s)
	}
	if c.Timeout < time.Second {
		c.Timeout = time.Second
	}
}

// UsesOAuth reports whether the client-credentials grant is configured.
func (c *QualtricsConfig) UsesOAuth() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Configured reports whether enough is set to reach the platform.
func (c *QualtricsConfig) Configured() bool {
	return (c.Domain != "" || c.BaseURL != "") && (c.APIKey != "" || c.UsesOAuth())
}
