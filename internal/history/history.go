// Package history tracks the recent navigation of each browser tab.
package history

import "sync"

// DefaultLimit is the number of URLs retained per tab.
const DefaultLimit = 12

// History keeps, per tab, a bounded sequence of visited URLs where consecutive duplicates
// are collapsed. It is safe for concurrent use; tabs never share state.
type History struct {
	mutex sync.Mutex
	limit int
	tabs  map[int64][]string
}

// New returns an empty history retaining at most limit URLs per tab.
// A non-positive limit falls back to DefaultLimit.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{
		limit: limit,
		tabs:  make(map[int64][]string),
	}
}

// RecordVisit appends url to the tab's history unless it repeats the previous entry, evicting
// the oldest entry once the limit is exceeded.
func (h *History) RecordVisit(tabID int64, url string) {
	if url == "" {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	hist := h.tabs[tabID]
	if len(hist) > 0 && hist[len(hist)-1] == url {
		return
	}
	hist = append(hist, url)
	if len(hist) > h.limit {
		hist = append([]string(nil), hist[len(hist)-h.limit:]...)
	}
	h.tabs[tabID] = hist
}

// RedirectCount returns the number of URL transitions seen for the tab, never negative.
// It counts distinct-from-previous navigations, not HTTP 3xx responses.
func (h *History) RedirectCount(tabID int64) int {
	return max(0, h.Len(tabID)-1)
}

// Len returns how many URLs are retained for the tab.
func (h *History) Len(tabID int64) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.tabs[tabID])
}

// URLs returns a copy of the tab's history, oldest first.
func (h *History) URLs(tabID int64) []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out := make([]string, len(h.tabs[tabID]))
	copy(out, h.tabs[tabID])
	return out
}

// Clear discards the tab's history, typically when the tab closes.
func (h *History) Clear(tabID int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.tabs, tabID)
}
