package report

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/velocimex/uptoken/internal/authflow"
	"github.com/velocimex/uptoken/internal/batch"
	"github.com/velocimex/uptoken/internal/credential"
	"github.com/velocimex/uptoken/internal/profile"
	"github.com/velocimex/uptoken/internal/tokenstore"
	"github.com/velocimex/uptoken/internal/validity"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestBatchSummary(t *testing.T) {
	var out strings.Builder
	r := NewReporter(&out)

	outcome := batch.Outcome{
		Status: batch.PartialSuccess,
		Results: []authflow.Result{
			{Credential: credential.Credential{Name: "MARKETDATA1"}},
			{Credential: credential.Credential{Name: "ORDERS1"}, Err: errors.New("pin step timed out")},
		},
		Succeeded: []string{"MARKETDATA1"},
		Failed:    []string{"ORDERS1"},
	}
	r.BatchSummary(outcome, "/home/op/.uptoken/tokens.json")

	got := out.String()
	for _, want := range []string{
		"✓ MARKETDATA1",
		"✗ ORDERS1: pin step timed out",
		"1 of 2 credentials succeeded (partial success)",
		"tokens saved to /home/op/.uptoken/tokens.json",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary is missing %q:\n%s", want, got)
		}
	}
}

func TestBatchSummaryPersistFailure(t *testing.T) {
	var out strings.Builder
	r := NewReporter(&out)

	r.BatchSummary(batch.Outcome{
		Status: batch.FullSuccess,
		Results: []authflow.Result{
			{Credential: credential.Credential{Name: "MARKETDATA1"}},
		},
		Succeeded:  []string{"MARKETDATA1"},
		PersistErr: errors.New("disk full"),
	}, "/tmp/tokens.json")

	got := out.String()
	if !strings.Contains(got, "could not be saved: disk full") {
		t.Errorf("summary does not surface the persist failure:\n%s", got)
	}
	if strings.Contains(got, "tokens saved to") {
		t.Errorf("summary claims tokens were saved despite persist failure:\n%s", got)
	}
}

func TestValidityReport(t *testing.T) {
	zone := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, zone)

	store, err := tokenstore.NewFileStore(
		filepath.Join(t.TempDir(), "tokens.json"),
		validity.NewPolicy(zone),
	)
	if err != nil {
		t.Fatal(err)
	}

	doc := &tokenstore.Document{
		Data: map[string]tokenstore.TokenRecord{
			"FRESH": {
				GeneratedAt: now.Add(-time.Hour),
				ValidityAt:  now.Add(10 * time.Hour),
			},
			"CLOSING": {
				GeneratedAt: now.Add(-time.Hour),
				ValidityAt:  now.Add(90 * time.Minute),
			},
			"DEAD": {
				GeneratedAt: now.Add(-30 * time.Hour),
				ValidityAt:  now.Add(-3 * time.Hour),
			},
			"UNDATED": {},
		},
	}

	var out strings.Builder
	NewReporter(&out).ValidityReport(store, doc, now)

	got := out.String()
	for _, want := range []string{
		"✓ FRESH: valid for 10h00m",
		"! CLOSING: expires in 1h30m",
		"✗ DEAD: expired 3h00m ago",
		"? UNDATED: no validity information",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report is missing %q:\n%s", want, got)
		}
	}

	// Sorted by name, so CLOSING precedes DEAD precedes FRESH.
	if strings.Index(got, "CLOSING") > strings.Index(got, "DEAD") {
		t.Errorf("report is not sorted by name:\n%s", got)
	}
}

func TestProfileCards(t *testing.T) {
	var out strings.Builder
	NewReporter(&out).ProfileCards([]profile.Result{
		{
			Name: "MARKETDATA1",
			Profile: profile.Profile{
				UserID:    "AB1234",
				UserName:  "Asha Trader",
				Email:     "trader@example.com",
				Broker:    "UPSTOX",
				Exchanges: []string{"NSE", "BSE"},
			},
		},
		{Name: "ORDERS1", Err: errors.New("status 401")},
	})

	got := out.String()
	for _, want := range []string{
		"✓ MARKETDATA1: Asha Trader (tr****@example.com)",
		"UPSTOX · AB1234 · exchanges: NSE, BSE",
		"✗ ORDERS1: status 401",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("cards are missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "trader@example.com") {
		t.Errorf("cards leak the unmasked email:\n%s", got)
	}
}

func TestStoreSummary(t *testing.T) {
	var out strings.Builder
	NewReporter(&out).StoreSummary(tokenstore.Summary{
		Total:      4,
		Valid:      2,
		Expired:    1,
		NoValidity: 1,
	}, "/home/op/.uptoken/tokens.json")

	got := out.String()
	if !strings.Contains(got, "4 tokens stored: 2 valid, 1 expired, 1 without validity info") {
		t.Errorf("summary line missing:\n%s", got)
	}
	if !strings.Contains(got, "token file: /home/op/.uptoken/tokens.json") {
		t.Errorf("token file location missing:\n%s", got)
	}
}

func TestCleanupReport(t *testing.T) {
	var out strings.Builder
	r := NewReporter(&out)

	r.CleanupReport(nil)
	if !strings.Contains(out.String(), "nothing to clean up") {
		t.Errorf("empty cleanup report = %q", out.String())
	}

	out.Reset()
	r.CleanupReport([]string{"OLD1", "OLD2"})
	if !strings.Contains(out.String(), "removed 2 stale token(s): OLD1, OLD2") {
		t.Errorf("cleanup report = %q", out.String())
	}
}
