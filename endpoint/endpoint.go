// Package endpoint defines the data model shared by the probe pipeline:
// endpoint descriptors with their auth material, and the immutable analysis
// snapshot a probe run produces.
package endpoint

import (
	"net/http"
	"net/url"

	"github.com/c360/skosprobe/errors"
)

// AuthType enumerates the supported endpoint authentication schemes.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api-key"
	AuthBearer AuthType = "bearer"
)

// Auth carries the credential payload for one endpoint. Which fields are
// populated depends on Type.
type Auth struct {
	Type AuthType `json:"type"`

	// Basic auth.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// API key: sent as HeaderName: Key. HeaderName defaults to X-API-Key.
	HeaderName string `json:"header_name,omitempty"`
	Key        string `json:"key,omitempty"`

	// Bearer token.
	Token string `json:"token,omitempty"`
}

// Endpoint identifies one remote SPARQL endpoint. The probe pipeline treats
// it as an immutable value per run; ownership stays with the caller.
type Endpoint struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Auth *Auth  `json:"auth,omitempty"`
}

// Validate checks that the descriptor can be probed at all.
func (e Endpoint) Validate() error {
	if e.ID == "" {
		return errors.Wrap(errors.ErrMissingConfig, "Endpoint", "Validate", "id is required")
	}
	if e.URL == "" {
		return errors.Wrap(errors.ErrMissingConfig, "Endpoint", "Validate", "url is required")
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return errors.Wrap(err, "Endpoint", "Validate", "url parse")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Wrap(errors.ErrInvalidConfig, "Endpoint", "Validate", "url scheme must be http or https")
	}
	return nil
}

// ApplyAuth sets the authentication headers for req according to the
// endpoint's auth configuration. A nil or none-typed auth is a no-op.
func (e Endpoint) ApplyAuth(req *http.Request) {
	if e.Auth == nil {
		return
	}
	switch e.Auth.Type {
	case AuthBasic:
		req.SetBasicAuth(e.Auth.Username, e.Auth.Password)
	case AuthAPIKey:
		header := e.Auth.HeaderName
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, e.Auth.Key)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+e.Auth.Token)
	}
}
