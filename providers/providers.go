// Package providers is the directory of content providers: the parties that
// host embedded interactive content. A provider is registered with a trust
// domain (the only web origin allowed to redeem its launches), a grant
// ceiling of scopes, and a key source used to verify launch tokens it signs
// itself.
package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound indicates no provider is registered for the lookup.
	ErrNotFound = errors.New("provider not found")
	// ErrKeyUnavailable indicates the provider's public key set could not
	// be fetched. Verification must fail closed on this error.
	ErrKeyUnavailable = errors.New("provider key set unavailable")
)

// Provider describes a registered content provider. Read-only from the
// protocol's perspective.
type Provider struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	TrustDomain string     `yaml:"trust_domain"`
	Scopes      scopes.Set `yaml:"-"`

	// Key source: exactly one of the two is set. Native content uses a
	// shared secret; externally hosted content publishes a JWKS.
	SharedSecret string `yaml:"shared_secret"`
	JWKSURL      string `yaml:"jwks_url"`

	RawScopes []string `yaml:"scopes"`
}

// External reports whether the provider verifies through a remote key set.
func (p *Provider) External() bool {
	return p.JWKSURL != ""
}

// MatchesOrigin reports whether a transport-derived request origin belongs
// to the provider's registered trust domain. Trust domains registered with a
// scheme must match the full origin; bare domains match the hostname only.
func (p *Provider) MatchesOrigin(origin string) bool {
	if p.TrustDomain == "" || origin == "" {
		return false
	}
	if strings.Contains(p.TrustDomain, "://") {
		return NormalizeOrigin(p.TrustDomain) == NormalizeOrigin(origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), p.TrustDomain)
}

// NormalizeOrigin reduces a URL to its scheme://host[:port] origin form.
// Invalid input normalizes to the empty string, which never matches.
func NormalizeOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Directory resolves courses to their registered provider. It is an external
// collaborator owned by course administration, consumed read-only here.
type Directory interface {
	// ForCourse returns the provider serving the course's embedded
	// content, or ErrNotFound when the course has none.
	ForCourse(ctx context.Context, courseID string) (*Provider, error)

	// Get returns a provider by ID, or ErrNotFound.
	Get(ctx context.Context, providerID string) (*Provider, error)
}
