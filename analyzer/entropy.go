// Package analyzer holds the risk heuristics applied to a scanned page: hostname entropy,
// phishing keyword patterns, lookalike-domain matching and the weighted risk score.
package analyzer

import "math"

// EntropyThreshold is the hostname entropy (in bits) above which a hostname is treated as
// randomly generated.
const EntropyThreshold = 3.8

// ComputeEntropy returns the Shannon entropy of s in bits, counting Unicode code points.
// The empty string has entropy 0.
func ComputeEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	freq := make(map[rune]int)
	length := 0
	for _, r := range s {
		freq[r]++
		length++
	}

	var entropy float64
	for _, count := range freq {
		p := float64(count) / float64(length)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
