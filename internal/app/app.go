// Package app wires configuration into the credential registry, token
// store, login flow and reports, and exposes one method per user-facing
// command.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/velocimex/uptoken/internal/authflow"
	"github.com/velocimex/uptoken/internal/batch"
	"github.com/velocimex/uptoken/internal/contracts"
	"github.com/velocimex/uptoken/internal/credential"
	"github.com/velocimex/uptoken/internal/logindriver"
	"github.com/velocimex/uptoken/internal/profile"
	"github.com/velocimex/uptoken/internal/report"
	"github.com/velocimex/uptoken/internal/secrets"
	"github.com/velocimex/uptoken/internal/tokenstore"
	"github.com/velocimex/uptoken/internal/upstox"
	"github.com/velocimex/uptoken/internal/validity"
)

// App orchestrates the token lifecycle commands over shared components.
type App struct {
	cfg      *Config
	registry *credential.Registry
	store    tokenstore.Store
	policy   validity.Policy
	reporter *report.Reporter
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	policy := validity.NewPolicy(nil)
	store, err := tokenstore.NewFileStore(cfg.Store.File, policy, tokenstore.WithGeneratedBy("uptoken"))
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return &App{
		cfg:      cfg,
		registry: cfg.Registry(),
		store:    store,
		policy:   policy,
		reporter: report.NewReporter(os.Stdout),
	}, nil
}

// LoginOptions adjusts a single login run.
type LoginOptions struct {
	// NoAutomation skips the browser driver entirely; every credential goes
	// through the manual paste-the-redirect flow.
	NoAutomation bool

	// WithContracts refreshes the instrument master after a successful run.
	WithContracts bool
}

// Login runs the authorization flow over every valid credential and returns
// the batch outcome. The store is cleaned of stale entries first so the run
// starts from an honest document.
func (a *App) Login(ctx context.Context, opts LoginOptions) (batch.Outcome, error) {
	removed, err := a.store.Cleanup(ctx, a.registry.Names(), time.Now())
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("token store cleanup failed: %w", err)
	}
	if len(removed) > 0 {
		a.reporter.CleanupReport(removed)
	}

	creds, err := a.registry.Validate(ctx)
	if err != nil {
		return batch.Outcome{}, err
	}

	driver, login := a.loginDriver(ctx, opts)

	orchestrator, err := authflow.New(upstox.Endpoint, driver, authflow.NewTerminalPrompter())
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("failed to create authorization flow: %w", err)
	}
	runner, err := batch.NewRunner(orchestrator, a.store, a.policy, batch.WithDelay(a.cfg.Login.Delay))
	if err != nil {
		return batch.Outcome{}, fmt.Errorf("failed to create batch runner: %w", err)
	}

	outcome, runErr := runner.Run(ctx, creds, login)
	a.reporter.BatchSummary(outcome, a.cfg.Store.File)

	if len(outcome.Succeeded) > 0 {
		a.verifyTokens(ctx, outcome)
	}
	a.reporter.ValidityReport(a.store, a.store.Load(ctx), time.Now())

	if runErr != nil {
		return outcome, runErr
	}

	if opts.WithContracts && len(outcome.Succeeded) > 0 {
		if err := a.DownloadContracts(ctx); err != nil {
			// The tokens are already safe; a contracts failure is not
			// worth failing the run over.
			slog.WarnContext(ctx, "instrument master refresh failed", "error", err)
		}
	}

	return outcome, nil
}

// loginDriver resolves the automated driver and its secrets. Missing
// secrets degrade to manual-only instead of failing the whole run.
func (a *App) loginDriver(ctx context.Context, opts LoginOptions) (authflow.Driver, secrets.LoginSecrets) {
	if opts.NoAutomation {
		slog.InfoContext(ctx, "automation disabled, using manual flow for all credentials")
		return nil, secrets.LoginSecrets{}
	}

	source, err := a.cfg.Secrets.NewSource()
	if err != nil {
		slog.WarnContext(ctx, "login secrets unavailable, falling back to manual flow", "error", err)
		return nil, secrets.LoginSecrets{}
	}
	login, err := source.Load(ctx)
	if err != nil {
		slog.WarnContext(ctx, "login secrets unavailable, falling back to manual flow", "error", err)
		return nil, secrets.LoginSecrets{}
	}

	return logindriver.NewChromeDriver(logindriver.WithHeadless(a.cfg.Login.Headless)), login
}

// verifyTokens checks each freshly issued token against the profile
// endpoint and renders the accounts behind them.
func (a *App) verifyTokens(ctx context.Context, outcome batch.Outcome) {
	tokens := make(map[string]string, len(outcome.Records))
	for name, record := range outcome.Records {
		tokens[name] = record.AccessToken
	}
	a.reporter.ProfileCards(profile.NewClient().VerifyAll(ctx, tokens))
}

// Status renders the stored tokens and their validity. With verify set,
// each valid token is additionally checked against the profile endpoint.
func (a *App) Status(ctx context.Context, verify bool) error {
	doc := a.store.Load(ctx)
	now := time.Now()

	a.reporter.ValidityReport(a.store, doc, now)
	a.reporter.StoreSummary(a.store.Summary(ctx), a.cfg.Store.File)

	if verify {
		tokens := a.store.AllActive(ctx, true)
		if len(tokens) == 0 {
			return fmt.Errorf("no valid tokens to verify")
		}
		a.reporter.ProfileCards(profile.NewClient().VerifyAll(ctx, tokens))
	}
	return nil
}

// Cleanup removes orphaned and expired entries from the token store.
func (a *App) Cleanup(ctx context.Context) error {
	removed, err := a.store.Cleanup(ctx, a.registry.Names(), time.Now())
	if err != nil {
		return fmt.Errorf("token store cleanup failed: %w", err)
	}
	a.reporter.CleanupReport(removed)
	return nil
}

// DownloadContracts refreshes the local instrument master.
func (a *App) DownloadContracts(ctx context.Context) error {
	downloader := contracts.NewDownloader(contracts.WithURL(a.cfg.Contracts.URL))
	info, err := downloader.Download(ctx, a.cfg.Contracts.File)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "instrument master ready", "path", info.Path, "size", info.Size)
	return nil
}
