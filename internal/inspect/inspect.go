// Package inspect counts the scripts on a page and estimates how many of them are trackers.
// Inspectors never fail: a page that cannot be inspected reports zero counts.
package inspect

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ScriptStats is the result of inspecting a page.
type ScriptStats struct {
	ScriptCount     int `json:"scriptCount"`
	TrackerEstimate int `json:"trackerEstimate"`
}

// Page identifies the document being scanned.
type Page struct {
	TabID int64
	URL   string
	// Reported carries counts already collected by the extension's content script.
	Reported *ScriptStats
}

// Inspector produces script statistics for a page.
type Inspector interface {
	Inspect(ctx context.Context, page Page) ScriptStats
}

// TrackerKeywords are matched against the lowercase src and inline text of each script.
var TrackerKeywords = []string{
	"google-analytics",
	"googletagmanager",
	"doubleclick",
	"facebook",
	"ads",
	"analytics",
	"gtag",
	"hotjar",
	"mixpanel",
	"segment",
	"amplitude",
	"yandex",
}

// IsTrackerScript reports whether a script's src or inline body mentions a tracker keyword.
func IsTrackerScript(src, text string) bool {
	combined := strings.ToLower(src) + " " + strings.ToLower(text)
	for _, k := range TrackerKeywords {
		if strings.Contains(combined, k) {
			return true
		}
	}
	return false
}

// CountDocument counts <script> elements and tracker scripts in a parsed document. Relative
// src attributes are resolved against doc.Url when it is set, as a browser would.
func CountDocument(doc *goquery.Document) ScriptStats {
	var stats ScriptStats
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		stats.ScriptCount++
		src, _ := s.Attr("src")
		if IsTrackerScript(resolveSrc(doc.Url, src), s.Text()) {
			stats.TrackerEstimate++
		}
	})
	return stats
}

// CountHTML parses an HTML document served from base and counts its scripts. base may be nil.
func CountHTML(r io.Reader, base *url.URL) (ScriptStats, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ScriptStats{}, err
	}
	doc.Url = base
	return CountDocument(doc), nil
}

func resolveSrc(base *url.URL, src string) string {
	src = strings.TrimSpace(src)
	if base == nil || src == "" {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

// Reported returns the counts the extension sent along with the page. When none were sent
// it defers to Next, or reports zeros when Next is nil.
type Reported struct {
	Next Inspector
}

// Inspect implements Inspector.
func (r Reported) Inspect(ctx context.Context, page Page) ScriptStats {
	if page.Reported != nil {
		return sanitize(*page.Reported)
	}
	if r.Next != nil {
		return r.Next.Inspect(ctx, page)
	}
	return ScriptStats{}
}

// sanitize clamps negative counts reported by a misbehaving client.
func sanitize(s ScriptStats) ScriptStats {
	return ScriptStats{
		ScriptCount:     max(0, s.ScriptCount),
		TrackerEstimate: max(0, s.TrackerEstimate),
	}
}
