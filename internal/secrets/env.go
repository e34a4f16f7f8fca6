package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvSource reads login secrets from environment variables.
type EnvSource struct {
	mobileKey string
	totpKey   string
	pinKey    string
}

// Compile-time check to ensure EnvSource implements Source
var _ Source = (*EnvSource)(nil)

// NewEnvSource creates an EnvSource for the given environment variables.
// Returns error if any variable name is empty.
func NewEnvSource(mobileKey, totpKey, pinKey string) (*EnvSource, error) {
	for _, key := range []string{mobileKey, totpKey, pinKey} {
		if key == "" {
			return nil, fmt.Errorf("environment key cannot be empty")
		}
	}

	return &EnvSource{
		mobileKey: mobileKey,
		totpKey:   totpKey,
		pinKey:    pinKey,
	}, nil
}

// Load returns the secrets from the environment. Returns error if any
// variable is unset or empty.
func (e *EnvSource) Load(ctx context.Context) (LoginSecrets, error) {
	if err := ctx.Err(); err != nil {
		return LoginSecrets{}, err
	}

	s := LoginSecrets{
		MobileNumber: os.Getenv(e.mobileKey),
		TOTPSecret:   os.Getenv(e.totpKey),
		PIN:          os.Getenv(e.pinKey),
	}
	if err := s.Validate(); err != nil {
		return LoginSecrets{}, fmt.Errorf("login secrets from environment: %w", err)
	}
	return s, nil
}
