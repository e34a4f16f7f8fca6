// Package profile verifies freshly issued access tokens against the
// provider's user profile endpoint. A token that can fetch its own profile
// is known-good end to end, which catches authorizations that succeeded
// formally but were issued for the wrong account.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/velocimex/uptoken/internal/upstox"
)

const defaultTimeout = 30 * time.Second

// Verification requests are independent reads, so a small fan-out is safe
// even though token acquisition itself is strictly sequential.
const maxConcurrentFetches = 4

// Profile is the subset of the provider's user profile this tool reports.
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	UserType  string   `json:"user_type"`
	Exchanges []string `json:"exchanges"`
	Products  []string `json:"products"`
	IsActive  bool     `json:"is_active"`
}

type profileEnvelope struct {
	Status string  `json:"status"`
	Data   Profile `json:"data"`
}

// Result pairs a credential name with its verification outcome.
type Result struct {
	Name    string
	Profile Profile
	Err     error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for profile requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the profile endpoint, primarily for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.profileURL = url
	}
}

// Client fetches user profiles from the provider API.
type Client struct {
	httpClient *http.Client
	profileURL string
}

// NewClient creates a profile client against the provider's live endpoint.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		profileURL: upstox.ProfileURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the profile behind an access token.
func (c *Client) Fetch(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile request rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope profileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Profile{}, fmt.Errorf("decoding profile response: %w", err)
	}
	if envelope.Status != "success" {
		return Profile{}, fmt.Errorf("profile request returned status %q", envelope.Status)
	}
	return envelope.Data, nil
}

// VerifyAll fetches the profile behind every token concurrently and returns
// results ordered by credential name. Individual failures do not stop the
// other verifications.
func (c *Client) VerifyAll(ctx context.Context, tokens map[string]string) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for name, token := range tokens {
		g.Go(func() error {
			p, err := c.Fetch(ctx, token)

			mu.Lock()
			results = append(results, Result{Name: name, Profile: p, Err: err})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// MaskEmail hides the bulk of the local part for console display, keeping
// just enough to recognize the account.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}
