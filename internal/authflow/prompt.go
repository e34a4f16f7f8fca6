package authflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/browser"
	"golang.org/x/term"
)

// PrompterOption configures a TerminalPrompter.
type PrompterOption func(*TerminalPrompter)

// WithInput overrides the operator input stream (stdin by default).
func WithInput(in io.Reader) PrompterOption {
	return func(p *TerminalPrompter) {
		p.in = in
		p.requireTerminal = false
	}
}

// WithOutput overrides where the prompt is written (stderr by default, so
// piped stdout stays clean).
func WithOutput(out io.Writer) PrompterOption {
	return func(p *TerminalPrompter) {
		p.out = out
	}
}

// WithBrowserOpen controls whether the authorization URL is auto-opened in
// the OS browser before prompting.
func WithBrowserOpen(open bool) PrompterOption {
	return func(p *TerminalPrompter) {
		p.openBrowser = open
	}
}

// TerminalPrompter presents the authorization URL to the operator and
// blocks on a single synchronous prompt for the redirect URL.
type TerminalPrompter struct {
	in              io.Reader
	out             io.Writer
	openBrowser     bool
	requireTerminal bool
}

// Compile-time check to ensure TerminalPrompter implements Prompter
var _ Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter creates a prompter reading from stdin and writing to
// stderr, auto-opening the browser unless disabled.
func NewTerminalPrompter(opts ...PrompterOption) *TerminalPrompter {
	p := &TerminalPrompter{
		in:              os.Stdin,
		out:             os.Stderr,
		openBrowser:     true,
		requireTerminal: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PromptRedirectURL shows the authorization URL and waits for the operator
// to paste the redirect URL. Empty input, a non-interactive stdin or
// context cancellation abort the fallback.
func (p *TerminalPrompter) PromptRedirectURL(ctx context.Context, credentialName, authURL string) (string, error) {
	if p.requireTerminal && !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal: %w", ErrManualFallbackAborted)
	}

	fmt.Fprintf(p.out, "\nVisit the following URL in your browser to authorize %s:\n%s\n", credentialName, authURL)

	if p.openBrowser {
		if err := browser.OpenURL(authURL); err != nil {
			slog.WarnContext(ctx, "failed to open browser automatically", "error", err)
		}
	}

	fmt.Fprintf(p.out, "\nPaste the full URL you were redirected to after login for %s: ", credentialName)

	// Stdin reads are not cancellable; read in a goroutine so an interrupt
	// still terminates the wait.
	type readResult struct {
		line string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := bufio.NewReader(p.in).ReadString('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("reading operator input: %w", ErrManualFallbackAborted)
		}
		redirectedURL := strings.TrimSpace(res.line)
		if redirectedURL == "" {
			return "", ErrManualFallbackAborted
		}
		return redirectedURL, nil
	}
}
