package analyzer

import (
	"math"
	"strings"
)

// RiskLabel is the coarse classification derived from a risk score.
type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// Score weights and bands.
const (
	secureSchemePoints     = 20
	suspiciousURLPoints    = 30
	highEntropyPoints      = 20
	maxScriptPoints        = 20
	closeLookalikePoints   = 30
	farLookalikePoints     = 10
	closeLookalikeMaxEdits = 1

	trackerNoteThreshold = 3

	HighRiskMin   = 65
	MediumRiskMin = 35
)

// Notes emitted by ScoreRisk.
const (
	NoteSuspiciousURL = "URL contains common phishing keywords."
	NoteHighEntropy   = "Hostname appears random (high entropy)."
	NoteTrackers      = "Multiple third-party trackers detected."
	lookalikeNoteLead = "Domain looks similar to: "

	// FallbackNote is the only note when no risk factor fired.
	FallbackNote = "No immediate risk factors detected."
)

// ScanSignals bundles the inputs of the risk score.
type ScanSignals struct {
	IsSecure        bool
	IsSuspiciousURL bool
	Entropy         float64
	ScriptCount     int
	TrackerEstimate int
	SimilarMatches  []SimilarityHit
}

// RiskAssessment is the outcome of ScoreRisk.
type RiskAssessment struct {
	Score int
	Label RiskLabel
	Notes []string
}

// ScoreRisk combines the signals into a 0-100 score, its label and explanatory notes.
// It is a pure function of its input.
func ScoreRisk(in ScanSignals) RiskAssessment {
	var sum float64
	if in.IsSecure {
		sum += secureSchemePoints
	}
	if in.IsSuspiciousURL {
		sum += suspiciousURLPoints
	}
	if in.Entropy > EntropyThreshold {
		sum += highEntropyPoints
	}
	if in.ScriptCount > 0 {
		sum += float64(min(in.ScriptCount, maxScriptPoints))
	}
	if len(in.SimilarMatches) > 0 {
		if bestDistance(in.SimilarMatches) <= closeLookalikeMaxEdits {
			sum += closeLookalikePoints
		} else {
			sum += farLookalikePoints
		}
	}

	score := clampScore(int(math.Round(sum)))
	return RiskAssessment{
		Score: score,
		Label: LabelFor(score),
		Notes: riskNotes(in),
	}
}

// bestDistance returns the smallest edit distance among hits. The matcher already sorts
// ascending, but callers may build signals by hand.
func bestDistance(hits []SimilarityHit) int {
	best := hits[0].EditDistance
	for _, h := range hits[1:] {
		if h.EditDistance < best {
			best = h.EditDistance
		}
	}
	return best
}

func clampScore(v int) int {
	return max(0, min(100, v))
}

// LabelFor maps a score to its band: High from 65, Medium from 35, Low below.
func LabelFor(score int) RiskLabel {
	switch {
	case score >= HighRiskMin:
		return RiskHigh
	case score >= MediumRiskMin:
		return RiskMedium
	default:
		return RiskLow
	}
}

func riskNotes(in ScanSignals) []string {
	notes := make([]string, 0, 4)
	if in.IsSuspiciousURL {
		notes = append(notes, NoteSuspiciousURL)
	}
	if in.Entropy > EntropyThreshold {
		notes = append(notes, NoteHighEntropy)
	}
	if in.TrackerEstimate > trackerNoteThreshold {
		notes = append(notes, NoteTrackers)
	}
	if len(in.SimilarMatches) > 0 {
		domains := make([]string, 0, len(in.SimilarMatches))
		for _, h := range in.SimilarMatches {
			domains = append(domains, h.Domain)
		}
		notes = append(notes, lookalikeNoteLead+strings.Join(domains, ", "))
	}
	if len(notes) == 0 {
		notes = append(notes, FallbackNote)
	}
	return notes
}

// HasRiskNotes reports whether notes carry at least one risk factor rather than only the
// fallback note.
func HasRiskNotes(notes []string) bool {
	for _, n := range notes {
		if n != FallbackNote {
			return true
		}
	}
	return false
}
