package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultSimilarityThreshold is the largest edit distance still reported as a lookalike.
const DefaultSimilarityThreshold = 3

// SimilarityHit is one near-match of a scanned hostname against a reference domain.
type SimilarityHit struct {
	Domain       string `json:"domain"`
	EditDistance int    `json:"editDistance"`
	Group        string `json:"group"`
}

// DomainGroup is a named list of trusted reference domains (e.g. "banks", "social").
type DomainGroup struct {
	Name    string
	Domains []string
}

// KnownDomainSet is the reference data the similarity matcher compares against.
// Groups keep the order in which they appear in the source document.
type KnownDomainSet struct {
	Groups []DomainGroup
}

// NewKnownDomainSet builds a set from the given groups, preserving their order.
func NewKnownDomainSet(groups ...DomainGroup) KnownDomainSet {
	return KnownDomainSet{Groups: groups}
}

// Len returns the total number of reference entries across all groups.
func (k KnownDomainSet) Len() int {
	n := 0
	for _, g := range k.Groups {
		n += len(g.Domains)
	}
	return n
}

// UnmarshalJSON decodes an object of group name -> array of domains. Group order follows
// the key order of the object. Non-array groups are ignored and non-string entries skipped.
func (k *KnownDomainSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		k.Groups = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode known domains: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("decode known domains: expected a JSON object")
	}

	var groups []DomainGroup
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode group name: %w", err)
		}
		name, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode group %q: %w", name, err)
		}
		domains, ok := decodeDomainList(raw)
		if !ok {
			continue
		}

		if i, seen := index[name]; seen {
			groups[i].Domains = domains
			continue
		}
		index[name] = len(groups)
		groups = append(groups, DomainGroup{Name: name, Domains: domains})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode known domains: %w", err)
	}

	k.Groups = groups
	return nil
}

func decodeDomainList(raw json.RawMessage) ([]string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}
	domains := make([]string, 0, len(entries))
	for _, entry := range entries {
		if bytes.Equal(bytes.TrimSpace(entry), []byte("null")) {
			continue
		}
		var d string
		if err := json.Unmarshal(entry, &d); err != nil {
			continue
		}
		domains = append(domains, d)
	}
	return domains, true
}

// MarshalJSON encodes the set as an object, keeping group order.
func (k KnownDomainSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range k.Groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(g.Name)
		if err != nil {
			return nil, err
		}
		domains := g.Domains
		if domains == nil {
			domains = []string{}
		}
		list, err := json.Marshal(domains)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(list)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeDomain strips one leading "www." and lowercases the result.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(domain, "www."))
}

// FindSimilarDomains compares domain against every reference entry and returns the entries
// within threshold edits, ordered by ascending distance. Ties keep reference order, and a
// domain listed in two groups yields two hits.
func FindSimilarDomains(domain string, known KnownDomainSet, threshold int) []SimilarityHit {
	hits := make([]SimilarityHit, 0)
	if domain == "" {
		return hits
	}

	candidate := NormalizeDomain(domain)
	for _, group := range known.Groups {
		for _, ref := range group.Domains {
			normalized := NormalizeDomain(strings.TrimSpace(ref))
			if normalized == "" {
				continue
			}
			dist := Levenshtein(candidate, normalized)
			if dist <= threshold {
				hits = append(hits, SimilarityHit{Domain: normalized, EditDistance: dist, Group: group.Name})
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].EditDistance < hits[j].EditDistance
	})
	return hits
}

// Levenshtein returns the minimum number of single-rune insertions, deletions and
// substitutions needed to turn a into b.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
