// Package secrets provides the login secrets the interactive driver needs
// to complete the provider's login form.
//
// Two backends with different deployment tradeoffs:
//   - Env: read from environment variables (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
package secrets

import (
	"context"
	"fmt"
)

// LoginSecrets carries everything needed to drive the provider's login
// steps: the account identifier, the TOTP shared secret, and the PIN.
type LoginSecrets struct {
	MobileNumber string
	TOTPSecret   string
	PIN          string
}

// Validate reports the first missing field, if any.
func (s LoginSecrets) Validate() error {
	switch {
	case s.MobileNumber == "":
		return fmt.Errorf("mobile number is empty")
	case s.TOTPSecret == "":
		return fmt.Errorf("TOTP secret is empty")
	case s.PIN == "":
		return fmt.Errorf("PIN is empty")
	}
	return nil
}

// Source loads login secrets from a backend.
type Source interface {
	// Load returns the login secrets. Returns error if any secret is
	// missing or empty.
	Load(ctx context.Context) (LoginSecrets, error)
}
