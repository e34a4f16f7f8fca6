// Package authflow orchestrates the OAuth2 authorization code flow for one
// credential at a time: CSRF-bound authorization URL, code acquisition
// through the automated login driver with a manual operator fallback, and
// the code-for-token exchange.
//
// The automated-then-manual control flow is an explicit state machine; every
// transition is an inspectable value on the returned Result, not a thrown
// and caught exception.
package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/velocimex/uptoken/internal/credential"
	"github.com/velocimex/uptoken/internal/secrets"
)

// stateEntropyBytes is the CSRF state entropy. 24 bytes keeps the URL-safe
// encoding padding-free and clears the 16-byte floor.
const stateEntropyBytes = 24

// DefaultExchangeTimeout bounds the code-for-token POST.
const DefaultExchangeTimeout = 30 * time.Second

// State names one node of the per-credential flow.
type State string

const (
	StatePending          State = "pending"
	StateAutomatedAttempt State = "automated_attempt"
	StateFallbackToManual State = "fallback_to_manual"
	StateManualAttempt    State = "manual_attempt"
	StateSuccess          State = "success"
	StateFailed           State = "failed"
)

// Transition records one state machine edge, with the error that caused it
// when the edge is a failure edge.
type Transition struct {
	From State
	To   State
	Err  error
}

// Driver completes the provider's login form for an authorization URL and
// returns the final redirected URL. The orchestrator treats it as opaque:
// it never inspects the driver's steps, only its typed failures
// (*DriverError).
type Driver interface {
	Login(ctx context.Context, authURL string, login secrets.LoginSecrets) (string, error)
}

// Prompter obtains the post-login redirect URL from the operator when the
// automated driver fails. Implementations must return
// ErrManualFallbackAborted on empty input.
type Prompter interface {
	PromptRedirectURL(ctx context.Context, credentialName, authURL string) (string, error)
}

// AuthorizationRequest is one single-use attempt: a freshly issued CSRF
// state bound to the composed authorization URL. Discarded after the code
// exchange or failure.
type AuthorizationRequest struct {
	Credential credential.Credential
	State      string
	URL        string
}

// Result is the outcome of running the flow for one credential.
type Result struct {
	Credential  credential.Credential
	AccessToken string
	State       State
	Transitions []Transition
	Err         error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient sets the HTTP client used for the code exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = client
	}
}

// WithExchangeTimeout bounds the code-for-token request.
func WithExchangeTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.exchangeTimeout = timeout
	}
}

// Orchestrator runs the authorization code flow per credential.
type Orchestrator struct {
	endpoint        oauth2.Endpoint
	driver          Driver
	prompter        Prompter
	httpClient      *http.Client
	exchangeTimeout time.Duration
}

// New creates an Orchestrator. A nil driver disables the automated attempt
// and goes straight to the manual fallback.
func New(endpoint oauth2.Endpoint, driver Driver, prompter Prompter, opts ...Option) (*Orchestrator, error) {
	if prompter == nil {
		return nil, fmt.Errorf("missing prompter")
	}

	o := &Orchestrator{
		endpoint:        endpoint,
		driver:          driver,
		prompter:        prompter,
		httpClient:      http.DefaultClient,
		exchangeTimeout: DefaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// BuildAuthorizationRequest composes the CSRF-bound authorization URL for a
// credential. Each call issues a fresh state.
func (o *Orchestrator) BuildAuthorizationRequest(cred credential.Credential) (*AuthorizationRequest, error) {
	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("generating CSRF state: %w", err)
	}

	cfg := o.oauthConfig(cred)
	return &AuthorizationRequest{
		Credential: cred,
		State:      state,
		URL:        cfg.AuthCodeURL(state),
	}, nil
}

// Run executes the whole flow for one credential: build the request,
// acquire a code, exchange it. The returned Result always carries the full
// transition history; Err is set when the final state is StateFailed.
func (o *Orchestrator) Run(ctx context.Context, cred credential.Credential, login secrets.LoginSecrets) Result {
	result := Result{Credential: cred, State: StatePending}

	request, err := o.BuildAuthorizationRequest(cred)
	if err != nil {
		result.fail(err)
		return result
	}

	code := o.acquireCode(ctx, request, login, &result)
	if result.State == StateFailed {
		return result
	}

	token, err := o.ExchangeCodeForToken(ctx, code, cred)
	if err != nil {
		result.fail(err)
		return result
	}

	result.advance(StateSuccess, nil)
	result.AccessToken = token
	return result
}

// acquireCode obtains an authorization code: automated driver first, then
// the manual operator prompt. A CSRF mismatch on either path is terminal
// and is never retried on the other path.
func (o *Orchestrator) acquireCode(ctx context.Context, request *AuthorizationRequest, login secrets.LoginSecrets, result *Result) string {
	name := request.Credential.Name

	if o.driver != nil {
		result.advance(StateAutomatedAttempt, nil)
		slog.InfoContext(ctx, "attempting automated login", "api", name)

		finalURL, err := o.driver.Login(ctx, request.URL, login)
		if err == nil {
			code, parseErr := parseRedirect(finalURL, request.State)
			if parseErr != nil {
				result.fail(parseErr)
				return ""
			}
			slog.InfoContext(ctx, "automated login succeeded", "api", name)
			return code
		}

		if ctx.Err() != nil {
			// Interrupted, not a driver defect: don't bother the operator.
			result.fail(ctx.Err())
			return ""
		}
		slog.WarnContext(ctx, "automated login failed, falling back to manual", "api", name, "error", err)
		result.advance(StateFallbackToManual, err)
	}

	result.advance(StateManualAttempt, nil)
	redirectedURL, err := o.prompter.PromptRedirectURL(ctx, name, request.URL)
	if err != nil {
		result.fail(err)
		return ""
	}

	code, err := parseRedirect(redirectedURL, request.State)
	if err != nil {
		result.fail(err)
		return ""
	}
	slog.InfoContext(ctx, "manual login succeeded", "api", name)
	return code
}

// ExchangeCodeForToken exchanges an authorization code for an access token
// at the token endpoint. Failures are classified as timeout, network or
// protocol; protocol errors retain the raw response body.
func (o *Orchestrator) ExchangeCodeForToken(ctx context.Context, code string, cred credential.Credential) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	token, err := o.oauthConfig(cred).Exchange(ctx, code)
	if err != nil {
		return "", classifyExchangeError(err)
	}
	if token.AccessToken == "" {
		return "", &ExchangeError{Kind: ExchangeProtocol, Err: errors.New("response missing access_token")}
	}
	return token.AccessToken, nil
}

func (o *Orchestrator) oauthConfig(cred credential.Credential) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RedirectURL:  cred.RedirectURI,
		Endpoint:     o.endpoint,
	}
}

func classifyExchangeError(err error) *ExchangeError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &ExchangeError{Kind: ExchangeProtocol, Body: retrieveErr.Body, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExchangeError{Kind: ExchangeTimeout, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return &ExchangeError{Kind: ExchangeTimeout, Err: err}
		}
		return &ExchangeError{Kind: ExchangeNetwork, Err: err}
	}
	// oauth2 reports a 2xx response without an access_token as a plain error.
	return &ExchangeError{Kind: ExchangeProtocol, Err: err}
}

// parseRedirect extracts the authorization code from a redirect URL and
// validates its state against the issued one.
func parseRedirect(redirectedURL, expectedState string) (string, error) {
	parsed, err := url.Parse(redirectedURL)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}

	query := parsed.Query()
	if got := query.Get("state"); got != expectedState {
		return "", &CsrfMismatchError{Expected: expectedState, Got: got}
	}

	code := query.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL carries no authorization code")
	}
	return code, nil
}

// newState returns a URL-safe random CSRF state.
func newState() (string, error) {
	buf := make([]byte, stateEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (r *Result) advance(to State, err error) {
	r.Transitions = append(r.Transitions, Transition{From: r.State, To: to, Err: err})
	r.State = to
}

func (r *Result) fail(err error) {
	r.advance(StateFailed, err)
	r.Err = err
}
