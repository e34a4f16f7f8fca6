package authflow

import (
	"errors"
	"fmt"
)

// ErrManualFallbackAborted marks an operator declining the manual prompt
// (empty input or a non-interactive terminal). Terminal for the credential.
var ErrManualFallbackAborted = errors.New("manual fallback aborted: no redirect URL provided")

// CsrfMismatchError reports a redirect whose state parameter does not match
// the state issued for the attempt. The code is never exchanged.
type CsrfMismatchError struct {
	Expected string
	Got      string
}

func (e *CsrfMismatchError) Error() string {
	return fmt.Sprintf("state parameter mismatch (possible CSRF): expected %q, got %q", e.Expected, e.Got)
}

// DriverErrorKind classifies automated login driver failures.
type DriverErrorKind int

const (
	DriverTimeout DriverErrorKind = iota
	DriverElementNotFound
	DriverUnexpected
)

func (k DriverErrorKind) String() string {
	switch k {
	case DriverTimeout:
		return "timeout"
	case DriverElementNotFound:
		return "element not found"
	default:
		return "unexpected"
	}
}

// DriverError is a typed failure from the interactive login driver. Any
// driver failure triggers the manual fallback; it surfaces as the
// credential's final error only if the fallback also fails.
type DriverError struct {
	Kind DriverErrorKind
	Step string
	Err  error
}

func (e *DriverError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("login driver %s at step %q: %v", e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("login driver %s: %v", e.Kind, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// ExchangeErrorKind classifies code exchange failures.
type ExchangeErrorKind int

const (
	ExchangeTimeout ExchangeErrorKind = iota
	ExchangeNetwork
	ExchangeProtocol
)

func (k ExchangeErrorKind) String() string {
	switch k {
	case ExchangeTimeout:
		return "timeout"
	case ExchangeNetwork:
		return "network"
	default:
		return "protocol"
	}
}

// ExchangeError reports a failed code exchange. For protocol failures the
// raw response body is retained for diagnostics.
type ExchangeError struct {
	Kind ExchangeErrorKind
	Body []byte
	Err  error
}

func (e *ExchangeError) Error() string {
	if e.Kind == ExchangeProtocol && len(e.Body) > 0 {
		return fmt.Sprintf("token exchange %s error: %v (response: %s)", e.Kind, e.Err, e.Body)
	}
	return fmt.Sprintf("token exchange %s error: %v", e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
