// Package batch drives the authorization flow over the validated credential
// registry, strictly one credential at a time: the login UI and the manual
// prompt admit one operator, and the provider rate-limits concurrent
// authorization attempts.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/velocimex/uptoken/internal/authflow"
	"github.com/velocimex/uptoken/internal/credential"
	"github.com/velocimex/uptoken/internal/secrets"
	"github.com/velocimex/uptoken/internal/tokenstore"
	"github.com/velocimex/uptoken/internal/validity"
)

// DefaultDelay is the fixed pause between credentials. Constant, not a
// backoff: it exists to respect upstream rate limiting.
const DefaultDelay = 3 * time.Second

// Status is the aggregate outcome of a batch run.
type Status int

const (
	FullSuccess Status = iota
	PartialSuccess
	TotalFailure
)

func (s Status) String() string {
	switch s {
	case FullSuccess:
		return "full success"
	case PartialSuccess:
		return "partial success"
	default:
		return "total failure"
	}
}

// ExitCode maps the aggregate outcome to the process exit indicator.
func (s Status) ExitCode() int {
	switch s {
	case FullSuccess:
		return 0
	case PartialSuccess:
		return 2
	default:
		return 1
	}
}

// Outcome aggregates a batch run. Records holds the newly acquired tokens
// even when persisting them failed, so callers never lose an acquired token.
type Outcome struct {
	RunID      string
	Status     Status
	Results    []authflow.Result
	Succeeded  []string
	Failed     []string
	Records    map[string]tokenstore.TokenRecord
	PersistErr error
}

// Option configures a Runner.
type Option func(*Runner)

// WithDelay overrides the fixed inter-credential pause.
func WithDelay(delay time.Duration) Option {
	return func(r *Runner) {
		r.delay = delay
	}
}

// WithClock overrides the time source used to stamp generated tokens.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner processes credentials sequentially and feeds the token store.
type Runner struct {
	orchestrator *authflow.Orchestrator
	store        tokenstore.Store
	policy       validity.Policy
	delay        time.Duration
	now          func() time.Time
}

// NewRunner creates a Runner over the given orchestrator and store.
func NewRunner(orchestrator *authflow.Orchestrator, store tokenstore.Store, policy validity.Policy, opts ...Option) (*Runner, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("missing orchestrator")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	r := &Runner{
		orchestrator: orchestrator,
		store:        store,
		policy:       policy,
		delay:        DefaultDelay,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes the credentials in registration order, merges all newly
// acquired tokens into the store in one operation, and returns the
// aggregate outcome. Per-credential failures never abort the batch; only
// context cancellation cuts it short, and tokens acquired before the
// interrupt are still merged and returned.
func (r *Runner) Run(ctx context.Context, creds []credential.Credential, login secrets.LoginSecrets) (Outcome, error) {
	outcome := Outcome{
		RunID:   uuid.NewString(),
		Records: make(map[string]tokenstore.TokenRecord),
	}
	log := slog.With("run_id", outcome.RunID)

	for i, cred := range creds {
		if err := ctx.Err(); err != nil {
			log.WarnContext(ctx, "batch interrupted", "processed", i, "total", len(creds))
			return r.finish(ctx, log, outcome, len(creds)), err
		}

		log.InfoContext(ctx, "processing credential", "api", cred.Name, "position", i+1, "total", len(creds))
		result := r.orchestrator.Run(ctx, cred, login)
		outcome.Results = append(outcome.Results, result)

		if result.Err != nil {
			log.ErrorContext(ctx, "credential failed", "api", cred.Name, "state", result.State, "error", result.Err)
			outcome.Failed = append(outcome.Failed, cred.Name)
		} else {
			generatedAt := r.now()
			validityAt := r.policy.CalculateValidity(generatedAt)
			outcome.Records[cred.Name] = tokenstore.TokenRecord{
				AccessToken: result.AccessToken,
				APIKey:      cred.ClientID,
				GeneratedAt: generatedAt,
				ValidityAt:  validityAt,
				Status:      tokenstore.RecordStatusActive,
			}
			outcome.Succeeded = append(outcome.Succeeded, cred.Name)
			log.InfoContext(ctx, "access token generated", "api", cred.Name, "valid_until", validityAt)
		}

		if i < len(creds)-1 {
			log.DebugContext(ctx, "pausing before next credential", "delay", r.delay)
			select {
			case <-ctx.Done():
			case <-time.After(r.delay):
			}
		}
	}

	return r.finish(ctx, log, outcome, len(creds)), nil
}

// finish computes the aggregate status and performs the single store merge.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, outcome Outcome, total int) Outcome {
	switch {
	case len(outcome.Succeeded) == 0:
		outcome.Status = TotalFailure
	case len(outcome.Failed) > 0 || len(outcome.Succeeded) < total:
		outcome.Status = PartialSuccess
	default:
		outcome.Status = FullSuccess
	}

	if len(outcome.Records) > 0 {
		// The merge uses a fresh context: acquired tokens should be
		// persisted even when the run was interrupted.
		if _, err := r.store.Merge(context.WithoutCancel(ctx), outcome.Records); err != nil {
			// Report, don't crash: acquired tokens are still in the outcome.
			log.ErrorContext(ctx, "failed to persist tokens", "error", err)
			outcome.PersistErr = err
		}
	} else if total > 0 {
		if err := r.store.MarkError(context.WithoutCancel(ctx), "all API configurations failed to authenticate"); err != nil {
			log.ErrorContext(ctx, "failed to record batch failure", "error", err)
		}
	}

	log.InfoContext(ctx, "batch finished",
		"status", outcome.Status.String(),
		"succeeded", len(outcome.Succeeded),
		"failed", len(outcome.Failed),
		"total", total,
	)
	return outcome
}
