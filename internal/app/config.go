package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/velocimex/uptoken/internal/batch"
	"github.com/velocimex/uptoken/internal/contracts"
	"github.com/velocimex/uptoken/internal/credential"
	"github.com/velocimex/uptoken/internal/secrets"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// SecretsBackend represents where the interactive login secrets come from.
type SecretsBackend string

const (
	SecretsBackendEnv     SecretsBackend = "env"
	SecretsBackendKeyring SecretsBackend = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat      = LogFormatText
	DefaultConfigSecretsBackend = SecretsBackendEnv
	DefaultConfigKeyringService = "uptoken"
	DefaultConfigEnvMobileKey   = "UPSTOX_MOBILE_NUMBER"
	DefaultConfigEnvTOTPKey     = "UPSTOX_TOTP_SECRET"
	DefaultConfigEnvPINKey      = "UPSTOX_PIN"
	DefaultConfigDelay          = batch.DefaultDelay
)

// CredentialConfig describes one API application. An entry missing its
// client id or secret is kept in the registry and skipped with a warning at
// run time, matching the warn-and-continue credential policy.
type CredentialConfig struct {
	Name         string `json:"name" validate:"required"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// RedirectURI overrides the shared redirect_uri for this entry.
	RedirectURI string `json:"redirect_uri,omitempty" validate:"omitempty,url"`
}

// SecretsConfig describes how to load the interactive login secrets.
type SecretsConfig struct {
	Backend SecretsBackend `json:"backend" validate:"required,oneof=env keyring"`

	// Backend-specific settings (mutually exclusive based on Backend)
	KeyringService string `json:"keyring_service,omitempty"` // For keyring: service name
	EnvMobileKey   string `json:"env_mobile_key,omitempty"`  // For env: variable names
	EnvTOTPKey     string `json:"env_totp_key,omitempty"`
	EnvPINKey      string `json:"env_pin_key,omitempty"`
}

// NewSource creates a secrets Source from the secrets configuration.
func (s *SecretsConfig) NewSource() (secrets.Source, error) {
	switch s.Backend {
	case SecretsBackendEnv:
		return secrets.NewEnvSource(s.EnvMobileKey, s.EnvTOTPKey, s.EnvPINKey)
	case SecretsBackendKeyring:
		return secrets.NewKeyringSource(s.KeyringService)
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", s.Backend)
	}
}

// StoreConfig holds token store configuration.
type StoreConfig struct {
	// File is the path of the persisted token document.
	File string `json:"file"`
}

// LoginConfig holds login flow behavior configuration.
type LoginConfig struct {
	// Headless runs the automated browser without a window.
	Headless bool `json:"headless"`

	// Delay is the fixed pause between credentials.
	Delay time.Duration `json:"delay"`
}

// ContractsConfig holds instrument master download configuration.
type ContractsConfig struct {
	URL  string `json:"url" validate:"omitempty,url"`
	File string `json:"file"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`

	// RedirectURI is the shared OAuth callback, used by every credential
	// that does not override it.
	RedirectURI string `json:"redirect_uri" validate:"omitempty,url"`

	Credentials []CredentialConfig `json:"credentials" validate:"required,min=1,dive"`
	Secrets     SecretsConfig      `json:"secrets"`
	Store       StoreConfig        `json:"store"`
	Login       LoginConfig        `json:"login"`
	Contracts   ContractsConfig    `json:"contracts"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Login.Delay == 0 {
		c.Login.Delay = DefaultConfigDelay
	}
	if c.Contracts.URL == "" {
		c.Contracts.URL = contracts.DefaultURL
	}

	if c.Secrets.Backend == "" {
		c.Secrets.Backend = DefaultConfigSecretsBackend
	}
	switch c.Secrets.Backend {
	case SecretsBackendEnv:
		if c.Secrets.EnvMobileKey == "" {
			c.Secrets.EnvMobileKey = DefaultConfigEnvMobileKey
		}
		if c.Secrets.EnvTOTPKey == "" {
			c.Secrets.EnvTOTPKey = DefaultConfigEnvTOTPKey
		}
		if c.Secrets.EnvPINKey == "" {
			c.Secrets.EnvPINKey = DefaultConfigEnvPINKey
		}
	case SecretsBackendKeyring:
		if c.Secrets.KeyringService == "" {
			c.Secrets.KeyringService = DefaultConfigKeyringService
		}
	}

	// Dynamic defaults under the user config directory
	if c.Store.File == "" || c.Contracts.File == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("store.file and contracts.file required (auto-detect failed: %w)", err)
		}
		if c.Store.File == "" {
			c.Store.File = filepath.Join(configDir, "uptoken", "tokens.json")
		}
		if c.Contracts.File == "" {
			c.Contracts.File = filepath.Join(configDir, "uptoken", "complete.json")
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Credentials))
	for _, cred := range c.Credentials {
		if seen[cred.Name] {
			return fmt.Errorf("duplicate credential name %q", cred.Name)
		}
		seen[cred.Name] = true

		// The redirect is needed to build the authorization URL, so a
		// complete credential must resolve one.
		if cred.ClientID != "" && cred.ClientSecret != "" && cred.RedirectURI == "" && c.RedirectURI == "" {
			return fmt.Errorf("credential %q has no redirect_uri and no shared redirect_uri is set", cred.Name)
		}
	}

	switch c.Secrets.Backend {
	case SecretsBackendEnv:
		if c.Secrets.EnvMobileKey == "" || c.Secrets.EnvTOTPKey == "" || c.Secrets.EnvPINKey == "" {
			return errors.New("env_mobile_key, env_totp_key and env_pin_key required for env secrets")
		}
	case SecretsBackendKeyring:
		if c.Secrets.KeyringService == "" {
			return errors.New("keyring_service required for keyring secrets")
		}
	}

	return nil
}

// Registry builds the credential registry, resolving each entry's redirect
// against the shared default.
func (c *Config) Registry() *credential.Registry {
	entries := make([]credential.Credential, 0, len(c.Credentials))
	for _, cred := range c.Credentials {
		redirect := cred.RedirectURI
		if redirect == "" {
			redirect = c.RedirectURI
		}
		entries = append(entries, credential.Credential{
			Name:         cred.Name,
			ClientID:     cred.ClientID,
			ClientSecret: cred.ClientSecret,
			RedirectURI:  redirect,
		})
	}
	return credential.NewRegistry(entries)
}
