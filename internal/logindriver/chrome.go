// Package logindriver drives the provider's login form in a real browser.
//
// The flow follows the Upstox login dialog: mobile number, TOTP code,
// PIN, then a redirect to the registered callback. Each step has a bounded
// wait and the whole login has an overall deadline; every exit path tears
// the browser session down. Callers treat the driver as opaque through the
// authflow.Driver interface and only see its typed failures.
package logindriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pquerna/otp/totp"

	"github.com/velocimex/uptoken/internal/authflow"
	"github.com/velocimex/uptoken/internal/secrets"
)

// Login form selectors on the Upstox authorization dialog.
const (
	selMobileInput  = "#mobileNum"
	selGetOTPButton = "#getOtp"
	selOTPInput     = "#otpNum"
	selOTPContinue  = "#continueBtn"
	selPINInput     = "#pinCode"
	selPINContinue  = "#pinContinueBtn"
)

const (
	defaultStepTimeout    = 30 * time.Second
	defaultOverallTimeout = 90 * time.Second

	// The dialog needs a moment to deliver the OTP and to swap form panes.
	interStepPause = 3 * time.Second

	redirectPollInterval = 500 * time.Millisecond
)

// Option configures a ChromeDriver.
type Option func(*ChromeDriver)

// WithHeadless runs the browser without a window (servers without a GUI).
func WithHeadless(headless bool) Option {
	return func(d *ChromeDriver) {
		d.headless = headless
	}
}

// WithStepTimeout bounds each individual login step.
func WithStepTimeout(timeout time.Duration) Option {
	return func(d *ChromeDriver) {
		d.stepTimeout = timeout
	}
}

// WithOverallTimeout bounds the whole login including the final redirect.
func WithOverallTimeout(timeout time.Duration) Option {
	return func(d *ChromeDriver) {
		d.overallTimeout = timeout
	}
}

// ChromeDriver completes the login form through a Chrome instance.
type ChromeDriver struct {
	headless       bool
	stepTimeout    time.Duration
	overallTimeout time.Duration
}

// Compile-time check to ensure ChromeDriver implements authflow.Driver
var _ authflow.Driver = (*ChromeDriver)(nil)

// NewChromeDriver creates a driver with bounded per-step and overall waits.
func NewChromeDriver(opts ...Option) *ChromeDriver {
	d := &ChromeDriver{
		stepTimeout:    defaultStepTimeout,
		overallTimeout: defaultOverallTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Login opens the authorization URL, completes the mobile/OTP/PIN steps and
// returns the final redirected URL. The browser session is released on
// every exit path, including cancellation.
func (d *ChromeDriver) Login(ctx context.Context, authURL string, login secrets.LoginSecrets) (string, error) {
	redirectHost, err := redirectHostOf(authURL)
	if err != nil {
		return "", &authflow.DriverError{Kind: authflow.DriverUnexpected, Step: "prepare", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.overallTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	slog.InfoContext(ctx, "opening authorization URL in browser")
	if err := d.runStep(browserCtx, "open authorization dialog",
		chromedp.Navigate(authURL),
		chromedp.WaitVisible(selMobileInput, chromedp.ByQuery),
	); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "entering mobile number")
	if err := d.runStep(browserCtx, "mobile number",
		chromedp.Clear(selMobileInput, chromedp.ByQuery),
		chromedp.SendKeys(selMobileInput, login.MobileNumber, chromedp.ByQuery),
		chromedp.Click(selGetOTPButton, chromedp.ByQuery),
		chromedp.Sleep(interStepPause),
	); err != nil {
		return "", err
	}

	code, err := totp.GenerateCode(login.TOTPSecret, time.Now())
	if err != nil {
		return "", &authflow.DriverError{Kind: authflow.DriverUnexpected, Step: "totp", Err: err}
	}

	slog.InfoContext(ctx, "entering TOTP code")
	if err := d.runStep(browserCtx, "otp",
		chromedp.WaitVisible(selOTPInput, chromedp.ByQuery),
		chromedp.Clear(selOTPInput, chromedp.ByQuery),
		chromedp.SendKeys(selOTPInput, code, chromedp.ByQuery),
		chromedp.Click(selOTPContinue, chromedp.ByQuery),
		chromedp.Sleep(interStepPause),
	); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "entering PIN")
	if err := d.runStep(browserCtx, "pin",
		chromedp.WaitVisible(selPINInput, chromedp.ByQuery),
		chromedp.Clear(selPINInput, chromedp.ByQuery),
		chromedp.SendKeys(selPINInput, login.PIN, chromedp.ByQuery),
		chromedp.Click(selPINContinue, chromedp.ByQuery),
	); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "waiting for redirect", "host", redirectHost)
	finalURL, err := d.waitForRedirect(browserCtx, redirectHost)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "captured redirect URL")
	return finalURL, nil
}

// runStep executes one bounded login step and classifies its failure.
func (d *ChromeDriver) runStep(ctx context.Context, step string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return classify(step, err, stepCtx)
	}
	return nil
}

// waitForRedirect polls the browser location until it lands on the
// registered redirect host. Runs under the overall deadline only, as the
// provider side of the redirect can be slow.
func (d *ChromeDriver) waitForRedirect(ctx context.Context, redirectHost string) (string, error) {
	ticker := time.NewTicker(redirectPollInterval)
	defer ticker.Stop()

	for {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return "", classify("redirect", err, ctx)
		}
		if current, err := url.Parse(location); err == nil && current.Host == redirectHost {
			return location, nil
		}

		select {
		case <-ctx.Done():
			return "", classify("redirect", ctx.Err(), ctx)
		case <-ticker.C:
		}
	}
}

func (d *ChromeDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("headless", d.headless),
	)
	return opts
}

// redirectHostOf extracts the registered callback host from the
// authorization URL's redirect_uri parameter.
func redirectHostOf(authURL string) (string, error) {
	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("parsing authorization URL: %w", err)
	}
	redirectURI := parsed.Query().Get("redirect_uri")
	if redirectURI == "" {
		return "", fmt.Errorf("authorization URL carries no redirect_uri")
	}
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parsing redirect_uri: %w", err)
	}
	if redirect.Host == "" {
		return "", fmt.Errorf("redirect_uri %q has no host", redirectURI)
	}
	return redirect.Host, nil
}

// classify maps a chromedp failure to the driver error taxonomy.
func classify(step string, err error, ctx context.Context) *authflow.DriverError {
	kind := authflow.DriverUnexpected
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = authflow.DriverTimeout
	case strings.Contains(err.Error(), "could not find node") || strings.Contains(err.Error(), "waiting for selector"):
		kind = authflow.DriverElementNotFound
	}
	return &authflow.DriverError{Kind: kind, Step: step, Err: err}
}
