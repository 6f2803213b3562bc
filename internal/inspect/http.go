package inspect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPOptions configures an HTTPInspector.
type HTTPOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // <= 0 disables rate limiting
	Burst             int
	UserAgent         string
	MaxBodyBytes      int64
	Client            *http.Client // optional; Timeout is ignored when set
}

const (
	defaultFetchTimeout = 5 * time.Second
	defaultMaxBodyBytes = 2 << 20
	defaultUserAgent    = "vigil-inspector/0.1"
)

// HTTPInspector downloads a page and counts the scripts in its static HTML. Scripts injected
// at runtime are not seen; BrowserInspector covers that case.
type HTTPInspector struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	logger    logrus.FieldLogger
}

// NewHTTPInspector builds an inspector from opts, filling unset fields with defaults.
func NewHTTPInspector(opts HTTPOptions, logger logrus.FieldLogger) *HTTPInspector {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &HTTPInspector{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: userAgent,
		maxBody:   maxBody,
		logger:    logger,
	}
}

// Inspect implements Inspector. Fetch or parse failures are logged and reported as zeros.
func (h *HTTPInspector) Inspect(ctx context.Context, page Page) ScriptStats {
	stats, err := h.fetch(ctx, page.URL)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"tab": page.TabID, "url": page.URL}).WithError(err).Warn("page inspection failed")
		return ScriptStats{}
	}
	return stats
}

func (h *HTTPInspector) fetch(ctx context.Context, rawURL string) (ScriptStats, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ScriptStats{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ScriptStats{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return ScriptStats{}, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ScriptStats{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := h.client.Do(req)
	if err != nil {
		return ScriptStats{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ScriptStats{}, fmt.Errorf("fetch page: unexpected status %s", resp.Status)
	}

	stats, err := CountHTML(io.LimitReader(resp.Body, h.maxBody), resp.Request.URL)
	if err != nil {
		return ScriptStats{}, fmt.Errorf("parse page: %w", err)
	}
	return stats, nil
}
