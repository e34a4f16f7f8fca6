// Package credential holds the per-API OAuth client identities and the
// registry that validates them at startup.
package credential

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoValidCredentials is returned when validation leaves no usable entry.
var ErrNoValidCredentials = errors.New("no valid API credentials configured")

// Credential identifies one Upstox API application. Immutable after
// construction; the Name is the unique key in the token document.
type Credential struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Complete reports whether the credential carries both client id and secret.
func (c Credential) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Registry is an ordered, fixed set of credentials. Order is registration
// order and determines batch processing order.
type Registry struct {
	entries []Credential
}

// NewRegistry creates a Registry preserving the given order.
func NewRegistry(entries []Credential) *Registry {
	return &Registry{entries: entries}
}

// All returns the configured credentials in registration order.
func (r *Registry) All() []Credential {
	return r.entries
}

// Names returns the names of all configured credentials, valid or not.
// Cleanup uses this set: an incomplete credential is still configured,
// and its previously issued token must survive.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, c := range r.entries {
		names = append(names, c.Name)
	}
	return names
}

// Validate returns the subset of credentials having both client id and
// secret, in registration order. Incomplete entries are logged and skipped,
// never a hard failure. Returns ErrNoValidCredentials only when the valid
// subset is empty.
func (r *Registry) Validate(ctx context.Context) ([]Credential, error) {
	valid := make([]Credential, 0, len(r.entries))
	for _, c := range r.entries {
		if !c.Complete() {
			slog.WarnContext(ctx, "skipping incomplete API credential", "api", c.Name)
			continue
		}
		slog.DebugContext(ctx, "API credential is valid", "api", c.Name)
		valid = append(valid, c)
	}

	if len(valid) == 0 {
		return nil, ErrNoValidCredentials
	}
	return valid, nil
}
