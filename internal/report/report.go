// Package report renders run results for the terminal. Everything here is
// presentation only; the numbers come from the batch outcome, the token
// store and the profile verifications.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/velocimex/uptoken/internal/batch"
	"github.com/velocimex/uptoken/internal/profile"
	"github.com/velocimex/uptoken/internal/tokenstore"
)

// Tokens this close to expiry get a warning so the operator can re-run
// before the cutoff instead of discovering a dead token mid-session.
const nearExpiryWarning = 2 * time.Hour

var (
	ok     = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	warn   = color.New(color.FgYellow)
	header = color.New(color.FgCyan, color.Bold)
	faint  = color.New(color.Faint)
)

// Reporter writes human-readable run reports.
type Reporter struct {
	out io.Writer
}

// NewReporter creates a Reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// BatchSummary renders the per-credential results and the final tally.
func (r *Reporter) BatchSummary(outcome batch.Outcome, storePath string) {
	header.Fprintln(r.out, "\nToken generation summary")

	for _, result := range outcome.Results {
		name := result.Credential.Name
		if result.Err == nil {
			ok.Fprintf(r.out, "  ✓ %s\n", name)
		} else {
			bad.Fprintf(r.out, "  ✗ %s: %v\n", name, result.Err)
		}
	}

	fmt.Fprintf(r.out, "\n%d of %d credentials succeeded (%s)\n",
		len(outcome.Succeeded), len(outcome.Results), outcome.Status)
	if outcome.PersistErr != nil {
		bad.Fprintf(r.out, "warning: tokens were generated but could not be saved: %v\n", outcome.PersistErr)
	} else if len(outcome.Succeeded) > 0 {
		faint.Fprintf(r.out, "tokens saved to %s\n", storePath)
	}
}

// ValidityReport renders each stored token's validity state.
func (r *Reporter) ValidityReport(store tokenstore.Store, doc *tokenstore.Document, now time.Time) {
	header.Fprintln(r.out, "\nToken validity")

	if len(doc.Data) == 0 {
		faint.Fprintln(r.out, "  no tokens stored")
		return
	}

	names := make([]string, 0, len(doc.Data))
	for name := range doc.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		record := doc.Data[name]
		detail := store.StatusDetail(record, now)
		switch {
		case detail.ExpiresAt.IsZero():
			warn.Fprintf(r.out, "  ? %s: no validity information\n", name)
		case !detail.Valid:
			bad.Fprintf(r.out, "  ✗ %s: expired %s ago (at %s)\n",
				name, formatDuration(detail.ExpiredFor), detail.ExpiresAt.Format("2006-01-02 15:04"))
		case detail.Remaining <= nearExpiryWarning:
			warn.Fprintf(r.out, "  ! %s: expires in %s (at %s)\n",
				name, formatDuration(detail.Remaining), detail.ExpiresAt.Format("2006-01-02 15:04"))
		default:
			ok.Fprintf(r.out, "  ✓ %s: valid for %s (until %s)\n",
				name, formatDuration(detail.Remaining), detail.ExpiresAt.Format("2006-01-02 15:04"))
		}
	}
}

// StoreSummary renders the aggregate validity tally and where the tokens
// live on disk.
func (r *Reporter) StoreSummary(summary tokenstore.Summary, storePath string) {
	fmt.Fprintf(r.out, "\n%d tokens stored: %s\n", summary.Total, summary)
	faint.Fprintf(r.out, "token file: %s\n", storePath)
}

// ProfileCards renders the verified account behind each token, with the
// email masked for over-the-shoulder safety.
func (r *Reporter) ProfileCards(results []profile.Result) {
	header.Fprintln(r.out, "\nAccount verification")

	for _, result := range results {
		if result.Err != nil {
			bad.Fprintf(r.out, "  ✗ %s: %v\n", result.Name, result.Err)
			continue
		}
		p := result.Profile
		ok.Fprintf(r.out, "  ✓ %s: %s (%s)\n", result.Name, p.UserName, profile.MaskEmail(p.Email))
		faint.Fprintf(r.out, "      %s · %s · exchanges: %s\n",
			p.Broker, p.UserID, strings.Join(p.Exchanges, ", "))
	}
}

// CleanupReport renders the names removed by a store cleanup.
func (r *Reporter) CleanupReport(removed []string) {
	if len(removed) == 0 {
		faint.Fprintln(r.out, "nothing to clean up")
		return
	}
	fmt.Fprintf(r.out, "removed %d stale token(s): %s\n", len(removed), strings.Join(removed, ", "))
}

// formatDuration renders durations the way an operator reads them, to the
// minute.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
