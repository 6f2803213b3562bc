package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// BrowserOptions configures a BrowserInspector.
type BrowserOptions struct {
	ExecPath string // empty lets chromedp locate Chrome
	Timeout  time.Duration
	Settle   time.Duration // wait after load for late scripts
}

const (
	defaultBrowserTimeout = 15 * time.Second
	defaultSettle         = 2 * time.Second
)

// BrowserInspector loads the page in headless Chrome and counts scripts after they run,
// which includes scripts injected by tag managers.
type BrowserInspector struct {
	opts   BrowserOptions
	logger logrus.FieldLogger
}

// NewBrowserInspector returns an inspector that launches a fresh headless browser per page.
func NewBrowserInspector(opts BrowserOptions, logger logrus.FieldLogger) *BrowserInspector {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultBrowserTimeout
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = defaultSettle
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BrowserInspector{opts: opts, logger: logger}
}

// Inspect implements Inspector.
func (b *BrowserInspector) Inspect(ctx context.Context, page Page) ScriptStats {
	stats, err := b.run(ctx, page.URL)
	if err != nil {
		b.logger.WithFields(logrus.Fields{"tab": page.TabID, "url": page.URL}).WithError(err).Warn("browser inspection failed")
		return ScriptStats{}
	}
	return sanitize(stats)
}

func (b *BrowserInspector) run(ctx context.Context, rawURL string) (ScriptStats, error) {
	script, err := countScriptsJS()
	if err != nil {
		return ScriptStats{}, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
	)
	if b.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(browserCtx, b.opts.Timeout)
	defer timeoutCancel()

	var stats ScriptStats
	err = chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(b.opts.Settle),
		chromedp.Evaluate(script, &stats),
	)
	if err != nil {
		return ScriptStats{}, fmt.Errorf("run browser: %w", err)
	}
	return stats, nil
}

// countScriptsJS mirrors IsTrackerScript inside the page.
func countScriptsJS() (string, error) {
	keywords, err := json.Marshal(TrackerKeywords)
	if err != nil {
		return "", fmt.Errorf("encode tracker keywords: %w", err)
	}
	return fmt.Sprintf(`(() => {
	const keywords = %s;
	const scripts = Array.from(document.scripts);
	let trackers = 0;
	for (const s of scripts) {
		const combined = (s.src || "").toLowerCase() + " " + (s.textContent || "").toLowerCase();
		if (keywords.some(k => combined.includes(k))) trackers++;
	}
	return {scriptCount: scripts.length, trackerEstimate: trackers};
})()`, keywords), nil
}
