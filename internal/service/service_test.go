package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/config"
	"github.com/Hussein-Mazeh/Vigil/internal/inspect"
	"github.com/Hussein-Mazeh/Vigil/store"
)

type fixedDomains analyzer.KnownDomainSet

func (f fixedDomains) LoadKnownDomains(context.Context) analyzer.KnownDomainSet {
	return analyzer.KnownDomainSet(f)
}

var paypalOnly = fixedDomains(analyzer.NewKnownDomainSet(
	analyzer.DomainGroup{Name: "banks", Domains: []string{"paypal.com"}},
))

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T, domains DomainLoader) *Service {
	t.Helper()
	st, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore returned error: %v", err)
	}
	svc, err := New(Options{Store: st, Domains: domains, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestAnalyzePhishingScenario(t *testing.T) {
	svc := newTestService(t, paypalOnly)
	const target = "http://paypa1-login-secure.com/verify-account"

	rec, err := svc.Analyze(context.Background(), inspect.Page{
		TabID:    7,
		URL:      target,
		Reported: &inspect.ScriptStats{ScriptCount: 15, TrackerEstimate: 5},
	})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if rec.IsSecure {
		t.Error("plain http should not be secure")
	}
	if rec.Hostname != "paypa1-login-secure.com" {
		t.Errorf("Hostname = %q", rec.Hostname)
	}
	if !rec.IsSuspiciousURL {
		t.Error("URL should match a phishing pattern")
	}
	if rec.Entropy <= analyzer.EntropyThreshold {
		t.Errorf("Entropy = %v, want > %v", rec.Entropy, analyzer.EntropyThreshold)
	}
	if len(rec.SimilarMatches) != 0 {
		t.Errorf("SimilarMatches = %+v, want none", rec.SimilarMatches)
	}
	if rec.RiskScore != 65 || rec.RiskLabel != analyzer.RiskHigh {
		t.Errorf("risk = %d %s, want 65 High", rec.RiskScore, rec.RiskLabel)
	}
	want := []string{analyzer.NoteSuspiciousURL, analyzer.NoteHighEntropy, analyzer.NoteTrackers}
	if fmt.Sprint(rec.Notes) != fmt.Sprint(want) {
		t.Errorf("Notes = %q, want %q", rec.Notes, want)
	}

	last, err := svc.LastScan(target)
	if err != nil {
		t.Fatalf("LastScan returned error: %v", err)
	}
	if last.RiskScore != rec.RiskScore || last.URL != target {
		t.Errorf("stored record differs: %+v", last)
	}
	if _, err := svc.TabScan(7); err != nil {
		t.Errorf("TabScan returned error: %v", err)
	}
}

func TestAnalyzeLookalikeScenario(t *testing.T) {
	svc := newTestService(t, paypalOnly)

	rec, err := svc.Analyze(context.Background(), inspect.Page{
		TabID:    1,
		URL:      "https://www.PayPa1.com/",
		Reported: &inspect.ScriptStats{ScriptCount: 2},
	})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if rec.Hostname != "paypa1.com" {
		t.Errorf("Hostname = %q, want paypa1.com", rec.Hostname)
	}
	if len(rec.SimilarMatches) != 1 || rec.SimilarMatches[0].EditDistance != 1 {
		t.Fatalf("SimilarMatches = %+v", rec.SimilarMatches)
	}
	// 20 https + 30 near lookalike + 2 scripts
	if rec.RiskScore != 52 || rec.RiskLabel != analyzer.RiskMedium {
		t.Errorf("risk = %d %s, want 52 Medium", rec.RiskScore, rec.RiskLabel)
	}
	if len(rec.Notes) != 1 || rec.Notes[0] != "Domain looks similar to: paypal.com" {
		t.Errorf("Notes = %q", rec.Notes)
	}
}

func TestAnalyzeRejectsInvalidURL(t *testing.T) {
	svc := newTestService(t, paypalOnly)
	for _, u := range []string{"", "not a url", "example.com/path", "https://"} {
		rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 1, URL: u})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Analyze(%q) error = %v, want ErrInvalidURL", u, err)
		}
		if rec != nil {
			t.Errorf("Analyze(%q) returned a record with an error", u)
		}
	}
	if _, err := svc.LastScan(""); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("invalid scans should not persist, LastScan error = %v", err)
	}
}

func TestAnalyzeUsesRedirectHistory(t *testing.T) {
	svc := newTestService(t, paypalOnly)
	svc.RecordVisit(3, "http://short.example/a")
	svc.RecordVisit(3, "http://short.example/a")
	svc.RecordVisit(3, "https://landing.example/")

	rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 3, URL: "https://landing.example/"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if rec.RedirectCount != 1 {
		t.Errorf("RedirectCount = %d, want 1", rec.RedirectCount)
	}
	if rec.RiskScore != 20 || len(rec.Notes) != 1 || rec.Notes[0] != analyzer.FallbackNote {
		t.Errorf("unexpected assessment: %d %q", rec.RiskScore, rec.Notes)
	}
}

func TestLastScanStaleRecord(t *testing.T) {
	svc := newTestService(t, paypalOnly)
	if _, err := svc.Analyze(context.Background(), inspect.Page{TabID: 1, URL: "https://a.example/"}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if _, err := svc.LastScan("https://b.example/"); !errors.Is(err, ErrStaleRecord) {
		t.Fatalf("LastScan error = %v, want ErrStaleRecord", err)
	}
	if _, err := svc.LastScan(""); err != nil {
		t.Fatalf("unchecked LastScan returned error: %v", err)
	}
}

func TestCloseTab(t *testing.T) {
	svc := newTestService(t, paypalOnly)
	svc.RecordVisit(4, "https://a.example/")
	svc.RecordVisit(4, "https://b.example/")
	if _, err := svc.Analyze(context.Background(), inspect.Page{TabID: 4, URL: "https://b.example/"}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if err := svc.CloseTab(4); err != nil {
		t.Fatalf("CloseTab returned error: %v", err)
	}
	if got := svc.RedirectCount(4); got != 0 {
		t.Errorf("RedirectCount after close = %d, want 0", got)
	}
	if _, err := svc.TabScan(4); !errors.Is(err, ErrNoRecord) {
		t.Errorf("TabScan after close error = %v, want ErrNoRecord", err)
	}
	if err := svc.CloseTab(4); err != nil {
		t.Errorf("closing an unknown tab should succeed, got %v", err)
	}
}

func TestAnalyzeConcurrentTabs(t *testing.T) {
	svc := newTestService(t, paypalOnly)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for tab := int64(1); tab <= 8; tab++ {
		wg.Add(1)
		go func(tab int64) {
			defer wg.Done()
			u := fmt.Sprintf("https://tab%d.example/", tab)
			svc.RecordVisit(tab, u)
			if _, err := svc.Analyze(context.Background(), inspect.Page{TabID: tab, URL: u}); err != nil {
				errs <- err
			}
		}(tab)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Analyze returned error: %v", err)
	}

	for tab := int64(1); tab <= 8; tab++ {
		rec, err := svc.TabScan(tab)
		if err != nil {
			t.Fatalf("TabScan(%d) returned error: %v", tab, err)
		}
		if want := fmt.Sprintf("https://tab%d.example/", tab); rec.URL != want {
			t.Errorf("tab %d URL = %q, want %q", tab, rec.URL, want)
		}
	}
}

func TestAnalyzeWithUnavailableDomainsStillScores(t *testing.T) {
	missing := store.DomainSource{Location: filepath.Join(t.TempDir(), "missing.json"), Logger: quietLogger()}
	svc := newTestService(t, missing)

	rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 1, URL: "https://paypa1.com/"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if len(rec.SimilarMatches) != 0 || rec.RiskScore != 20 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

// gatedInspector blocks each inspection until release is closed.
type gatedInspector struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedInspector) Inspect(ctx context.Context, page inspect.Page) inspect.ScriptStats {
	g.started <- struct{}{}
	<-g.release
	return inspect.ScriptStats{}
}

func TestCloseTabDuringScanLeavesNoRow(t *testing.T) {
	st, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore returned error: %v", err)
	}
	gate := gatedInspector{started: make(chan struct{}), release: make(chan struct{})}
	svc, err := New(Options{Store: st, Inspector: gate, Domains: paypalOnly, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer svc.Close()

	type result struct {
		rec *analyzer.ScanRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 9, URL: "https://a.example/"})
		done <- result{rec, err}
	}()

	<-gate.started
	if err := svc.CloseTab(9); err != nil {
		t.Fatalf("CloseTab returned error: %v", err)
	}
	close(gate.release)

	res := <-done
	if res.err != nil || res.rec == nil {
		t.Fatalf("Analyze = %v, %v; want a record", res.rec, res.err)
	}
	if _, err := svc.TabScan(9); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("TabScan after close error = %v, want ErrNoRecord", err)
	}
	if _, err := svc.LastScan(""); !errors.Is(err, ErrNoRecord) {
		t.Fatalf("LastScan error = %v, want ErrNoRecord", err)
	}

	// a scan started after the close is stored normally
	go func() {
		rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 9, URL: "https://b.example/"})
		done <- result{rec, err}
	}()
	<-gate.started
	if res := <-done; res.err != nil {
		t.Fatalf("Analyze returned error: %v", res.err)
	}
	if rec, err := svc.TabScan(9); err != nil || rec.URL != "https://b.example/" {
		t.Fatalf("TabScan = %v, %v; want the new scan", rec, err)
	}
	if len(svc.tabs) != 0 {
		t.Fatalf("tabs still tracked: %d", len(svc.tabs))
	}
}

type failingStore struct{ RecordStore }

func (failingStore) SaveScan(int64, *analyzer.ScanRecord) error { return errors.New("disk full") }

func TestAnalyzePersistenceFailure(t *testing.T) {
	svc, err := New(Options{Store: failingStore{}, Domains: paypalOnly, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	rec, err := svc.Analyze(context.Background(), inspect.Page{TabID: 1, URL: "https://a.example/"})
	if err == nil || rec != nil {
		t.Fatalf("Analyze = %v, %v; want error and no record", rec, err)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Inspector.Mode = config.ModeHTTP
	cfg.Inspector.Timeout = time.Second

	svc, err := NewFromConfig(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	defer svc.Close()

	if _, ok := svc.inspector.(inspect.Reported); !ok {
		t.Errorf("inspector = %T, want inspect.Reported", svc.inspector)
	}
	if svc.threshold != cfg.SimilarityThreshold {
		t.Errorf("threshold = %d, want %d", svc.threshold, cfg.SimilarityThreshold)
	}
}

func TestShouldAutoScan(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/":              true,
		"http://example.com/login":          true,
		"chrome://settings":                 false,
		"chrome-extension://abc/popup.html": false,
		"file:///tmp/a.html":                false,
		"about:blank":                       false,
		"":                                  false,
	}
	for in, want := range tests {
		if got := ShouldAutoScan(in); got != want {
			t.Errorf("ShouldAutoScan(%q) = %v, want %v", in, got, want)
		}
	}
}
