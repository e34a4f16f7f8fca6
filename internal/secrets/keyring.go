package secrets

import (
	"context"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keyring entry names within the service.
const (
	keyringMobileUser = "mobile_number"
	keyringTOTPUser   = "totp_secret"
	keyringPINUser    = "pin"
)

// KeyringSource reads login secrets from OS-native credential storage
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeyringSource struct {
	service string
}

// Compile-time check to ensure KeyringSource implements Source
var _ Source = (*KeyringSource)(nil)

// NewKeyringSource creates a KeyringSource reading the mobile_number,
// totp_secret and pin entries under the given service name.
func NewKeyringSource(service string) (*KeyringSource, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	return &KeyringSource{service: service}, nil
}

// Load returns the secrets from the keyring. Returns error if any entry is
// missing or empty.
func (k *KeyringSource) Load(ctx context.Context) (LoginSecrets, error) {
	if err := ctx.Err(); err != nil {
		return LoginSecrets{}, err
	}

	var s LoginSecrets
	for _, entry := range []struct {
		user string
		dst  *string
	}{
		{keyringMobileUser, &s.MobileNumber},
		{keyringTOTPUser, &s.TOTPSecret},
		{keyringPINUser, &s.PIN},
	} {
		value, err := keyring.Get(k.service, entry.user)
		if err != nil {
			return LoginSecrets{}, fmt.Errorf("reading %s from keyring service %s: %w", entry.user, k.service, err)
		}
		*entry.dst = value
	}

	if err := s.Validate(); err != nil {
		return LoginSecrets{}, fmt.Errorf("login secrets from keyring: %w", err)
	}
	return s, nil
}
