package analyzer

import "time"

// ScanRecord is the result of one analysis pass on one URL. It is built once per scan and
// never mutated afterwards.
type ScanRecord struct {
	URL               string          `json:"url"`
	Hostname          string          `json:"hostname"`
	RegistrableDomain string          `json:"registrableDomain,omitempty"`
	IsSecure          bool            `json:"isSecure"`
	RedirectCount     int             `json:"redirectCount"`
	ScriptCount       int             `json:"scriptCount"`
	TrackerEstimate   int             `json:"trackerEstimate"`
	Entropy           float64         `json:"entropy"`
	IsSuspiciousURL   bool            `json:"isSuspiciousUrl"`
	SimilarMatches    []SimilarityHit `json:"similarMatches"`
	RiskScore         int             `json:"riskScore"`
	RiskLabel         RiskLabel       `json:"riskLabel"`
	Notes             []string        `json:"notes"`
	ScannedAt         time.Time       `json:"scannedAt"`
}

// Signals returns the scoring inputs carried by the record.
func (r *ScanRecord) Signals() ScanSignals {
	return ScanSignals{
		IsSecure:        r.IsSecure,
		IsSuspiciousURL: r.IsSuspiciousURL,
		Entropy:         r.Entropy,
		ScriptCount:     r.ScriptCount,
		TrackerEstimate: r.TrackerEstimate,
		SimilarMatches:  r.SimilarMatches,
	}
}

// Matches reports whether the record was produced for currentURL. Readers use it to reject
// a record left over from an earlier navigation.
func (r *ScanRecord) Matches(currentURL string) bool {
	return r != nil && currentURL != "" && r.URL == currentURL
}
