// Package service runs page scans: it gathers the signals for a URL, scores them, keeps the
// per-tab navigation history and persists the results.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/config"
	"github.com/Hussein-Mazeh/Vigil/internal/history"
	"github.com/Hussein-Mazeh/Vigil/internal/hostname"
	"github.com/Hussein-Mazeh/Vigil/internal/inspect"
	"github.com/Hussein-Mazeh/Vigil/store"
)

var (
	// ErrInvalidURL indicates the scan target has no scheme or host.
	ErrInvalidURL = errors.New("invalid url")
	// ErrNoRecord indicates no scan has been stored for the requested slot.
	ErrNoRecord = errors.New("no scan record")
	// ErrStaleRecord indicates the stored record belongs to a different URL than the one shown.
	ErrStaleRecord = errors.New("stale scan record")
)

// DomainLoader supplies the known-domain reference set. Implementations never fail; they
// return an empty set when the data is unavailable.
type DomainLoader interface {
	LoadKnownDomains(ctx context.Context) analyzer.KnownDomainSet
}

// Options wires a Service. Zero fields get defaults, except Store which is required.
type Options struct {
	Store               RecordStore
	History             *history.History
	Inspector           inspect.Inspector
	Domains             DomainLoader
	SimilarityThreshold int // values below 1 select analyzer.DefaultSimilarityThreshold
	Logger              logrus.FieldLogger
	Now                 func() time.Time
}

// Service exposes scan operations for the native host and the CLI. It is safe for
// concurrent use across tabs.
type Service struct {
	store     RecordStore
	history   *history.History
	inspector inspect.Inspector
	domains   DomainLoader
	threshold int
	logger    logrus.FieldLogger
	now       func() time.Time

	mu   sync.Mutex
	tabs map[int64]*tabScans
}

// tabScans tracks scans in flight for one tab. closed is set when the tab goes away while
// any of them is still running.
type tabScans struct {
	running int
	closed  bool
}

// New returns a service bound to opts.Store.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("record store is required")
	}
	s := &Service{
		store:     opts.Store,
		history:   opts.History,
		inspector: opts.Inspector,
		domains:   opts.Domains,
		threshold: opts.SimilarityThreshold,
		logger:    opts.Logger,
		now:       opts.Now,
		tabs:      make(map[int64]*tabScans),
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.history == nil {
		s.history = history.New(history.DefaultLimit)
	}
	if s.inspector == nil {
		s.inspector = inspect.Reported{}
	}
	if s.domains == nil {
		s.domains = store.DomainSource{Logger: s.logger}
	}
	if s.threshold < 1 {
		s.threshold = analyzer.DefaultSimilarityThreshold
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// NewFromConfig opens the scans database and builds the inspector named by cfg.
func NewFromConfig(cfg *config.Config, logger logrus.FieldLogger) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	st, err := OpenSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open scans database (%s): %w", cfg.DatabasePath(), err)
	}

	svc, err := New(Options{
		Store:               st,
		History:             history.New(cfg.HistoryLimit),
		Inspector:           InspectorFor(cfg.Inspector, logger),
		Domains:             store.DomainSource{Location: cfg.KnownDomains, Logger: logger},
		SimilarityThreshold: cfg.SimilarityThreshold,
		Logger:              logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return svc, nil
}

// InspectorFor maps the configured mode onto an inspector. Counts reported by the extension
// always win; the mode only decides what runs when none were sent.
func InspectorFor(cfg config.InspectorConfig, logger logrus.FieldLogger) inspect.Inspector {
	switch cfg.Mode {
	case config.ModeHTTP:
		return inspect.Reported{Next: inspect.NewHTTPInspector(inspect.HTTPOptions{
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.Rate,
			UserAgent:         cfg.UserAgent,
			MaxBodyBytes:      cfg.MaxBodyBytes,
		}, logger)}
	case config.ModeBrowser:
		return inspect.Reported{Next: inspect.NewBrowserInspector(inspect.BrowserOptions{
			ExecPath: cfg.ChromePath,
			Timeout:  cfg.Timeout,
		}, logger)}
	default:
		return inspect.Reported{}
	}
}

// Close releases the record store when it holds resources.
func (s *Service) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Store returns the record store the service writes to.
func (s *Service) Store() RecordStore {
	return s.store
}

// Analyze scans page.URL and persists the record for page.TabID.
//
// Returns:
//
//	*analyzer.ScanRecord: the finished record.
//	error: ErrInvalidURL for a target without scheme or host; a wrapped storage error when
//	the record could not be saved. No record is returned with an error.
//
// Behavior:
//  1. Normalizes the hostname (lowercase, one leading "www." removed).
//  2. Collects script counts and the known-domain set; both degrade to zeros/empty.
//  3. Computes entropy, the URL pattern check, similar domains and the redirect count.
//  4. Scores the signals and saves the record to the tab slot and the last-scan slot,
//     unless the tab was closed while the scan ran.
func (s *Service) Analyze(ctx context.Context, page inspect.Page) (*analyzer.ScanRecord, error) {
	u, err := url.Parse(strings.TrimSpace(page.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, page.URL)
	}
	host := hostname.Normalize(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, page.URL)
	}

	scans := s.beginScan(page.TabID)

	stats := s.inspector.Inspect(ctx, page)
	known := s.domains.LoadKnownDomains(ctx)

	rec := &analyzer.ScanRecord{
		URL:               page.URL,
		Hostname:          host,
		RegistrableDomain: hostname.RegistrableDomain(host),
		IsSecure:          u.Scheme == "https",
		RedirectCount:     s.history.RedirectCount(page.TabID),
		ScriptCount:       stats.ScriptCount,
		TrackerEstimate:   stats.TrackerEstimate,
		Entropy:           analyzer.ComputeEntropy(host),
		IsSuspiciousURL:   analyzer.URLHasSuspiciousPattern(page.URL),
		SimilarMatches:    analyzer.FindSimilarDomains(host, known, s.threshold),
		ScannedAt:         s.now().UTC(),
	}
	assessment := analyzer.ScoreRisk(rec.Signals())
	rec.RiskScore = assessment.Score
	rec.RiskLabel = assessment.Label
	rec.Notes = assessment.Notes

	stored, err := s.finishScan(page.TabID, scans, rec)
	if err != nil {
		return nil, fmt.Errorf("persist scan: %w", err)
	}
	if !stored {
		s.logger.WithField("tab", page.TabID).Debug("tab closed during scan, record not stored")
	}

	s.logger.WithFields(logrus.Fields{
		"tab":   page.TabID,
		"host":  host,
		"score": rec.RiskScore,
		"label": rec.RiskLabel,
	}).Info("scan complete")
	return rec, nil
}

func (s *Service) beginScan(tabID int64) *tabScans {
	s.mu.Lock()
	defer s.mu.Unlock()
	scans := s.tabs[tabID]
	if scans == nil {
		scans = &tabScans{}
		s.tabs[tabID] = scans
	}
	scans.running++
	return scans
}

// finishScan saves rec unless the tab was closed after the scan began. The lock is held
// across the write so CloseTab cannot delete the row between the check and the upsert.
func (s *Service) finishScan(tabID int64, scans *tabScans, rec *analyzer.ScanRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scans.running--
	if scans.running == 0 && s.tabs[tabID] == scans {
		delete(s.tabs, tabID)
	}
	if scans.closed {
		return false, nil
	}
	if err := s.store.SaveScan(tabID, rec); err != nil {
		return false, err
	}
	return true, nil
}

// KnownDomains returns the reference set used for similarity matching.
func (s *Service) KnownDomains(ctx context.Context) analyzer.KnownDomainSet {
	return s.domains.LoadKnownDomains(ctx)
}

// RecordVisit appends a navigation to the tab's history.
func (s *Service) RecordVisit(tabID int64, rawURL string) {
	if strings.TrimSpace(rawURL) == "" {
		return
	}
	s.history.RecordVisit(tabID, rawURL)
}

// RedirectCount reports the tab's current redirect count.
func (s *Service) RedirectCount(tabID int64) int {
	return s.history.RedirectCount(tabID)
}

// CloseTab discards the tab's history and its stored record. Scans still running for the
// tab finish without storing anything.
func (s *Service) CloseTab(tabID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scans := s.tabs[tabID]; scans != nil {
		scans.closed = true
		delete(s.tabs, tabID)
	}
	s.history.Clear(tabID)
	if err := s.store.DeleteTabScan(tabID); err != nil && !errors.Is(err, ErrNoRecord) {
		return fmt.Errorf("delete tab scan: %w", err)
	}
	return nil
}

// LastScan returns the most recent record. When currentURL is non-empty the record must have
// been produced for it, otherwise ErrStaleRecord is returned alongside nothing.
func (s *Service) LastScan(currentURL string) (*analyzer.ScanRecord, error) {
	rec, err := s.store.LastScan()
	if err != nil {
		return nil, err
	}
	if currentURL != "" && !rec.Matches(currentURL) {
		return nil, ErrStaleRecord
	}
	return rec, nil
}

// TabScan returns the record stored for tabID.
func (s *Service) TabScan(tabID int64) (*analyzer.ScanRecord, error) {
	return s.store.TabScan(tabID)
}

// ShouldAutoScan reports whether a finished page load should be scanned without a user
// request. Browser-internal pages and non-web schemes are skipped.
func ShouldAutoScan(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	if strings.HasPrefix(rawURL, "chrome://") || strings.HasPrefix(rawURL, "chrome-extension://") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
