package domaincheck

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/idna"

	"github.com/Hussein-Mazeh/Vigil/analyzer"
	"github.com/Hussein-Mazeh/Vigil/internal/confusables"
	"github.com/Hussein-Mazeh/Vigil/internal/hostname"
)

// Lookalike verdict reasons.
const (
	ReasonURLParseError = "URL_PARSE_ERROR"
	ReasonHTTP          = "HTTP"
	ReasonETLDInvalid   = "ETLD_INVALID"
	ReasonPunycode      = "PUNYCODE"
	ReasonMixedScript   = "MIXED_SCRIPT"
	ReasonConfusable    = "CONFUSABLE"
)

// Verdict is the outcome of CheckLookalike.
type Verdict struct {
	OK         bool     `json:"ok"`
	Reasons    []string `json:"reasons"`
	ETLD1      string   `json:"etld1,omitempty"`
	Lookalikes []string `json:"lookalikes,omitempty"`
}

// CheckLookalike inspects a URL for homograph tricks against the known domains.
//
// Args:
//
//	rawURL: full URL of the page being viewed.
//	known: trusted reference domains the page might be impersonating.
//
// Returns:
//
//	Verdict: OK only when no reason was recorded; Lookalikes lists the impersonated domains.
//
// Behavior:
//  1. Parses the URL, capturing eTLD+1 via IDNA and publicsuffix helpers.
//  2. Records reasons (HTTP, invalid eTLD, punycode labels, mixed scripts).
//  3. Compares the Unicode eTLD+1 with every known domain's eTLD+1 using confusable skeletons.
func CheckLookalike(rawURL string, known analyzer.KnownDomainSet) Verdict {
	reasons := make([]string, 0)

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return Verdict{OK: false, Reasons: []string{ReasonURLParseError}}
	}

	if !strings.EqualFold(parsed.Scheme, "https") {
		reasons = append(reasons, ReasonHTTP)
	}

	hostLower := strings.ToLower(parsed.Hostname())

	asciiHost := hostLower
	if converted, err := idna.Lookup.ToASCII(hostLower); err == nil && converted != "" {
		asciiHost = converted
	}

	unicodeHost := hostLower
	if converted, err := idna.Lookup.ToUnicode(hostLower); err == nil && converted != "" {
		unicodeHost = converted
	}

	etld1 := hostname.RegistrableDomain(asciiHost)
	if etld1 == "" {
		etld1 = hostname.RegistrableDomain(unicodeHost)
	}
	if etld1 == "" {
		reasons = append(reasons, ReasonETLDInvalid)
	}

	if strings.Contains(asciiHost, "xn--") {
		reasons = append(reasons, ReasonPunycode)
	}

	if hasMixedScript(unicodeHost) {
		reasons = append(reasons, ReasonMixedScript)
	}

	var lookalikes []string
	if etld1 != "" {
		candidate := etld1
		if converted, err := idna.Lookup.ToUnicode(etld1); err == nil && converted != "" {
			candidate = converted
		}
		lookalikes = confusableTargets(candidate, known)
		if len(lookalikes) > 0 {
			reasons = append(reasons, ReasonConfusable)
		}
	}

	return Verdict{
		OK:         len(reasons) == 0,
		Reasons:    reasons,
		ETLD1:      etld1,
		Lookalikes: lookalikes,
	}
}

// confusableTargets returns the known registrable domains that candidate visually imitates.
func confusableTargets(candidate string, known analyzer.KnownDomainSet) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, group := range known.Groups {
		for _, ref := range group.Domains {
			target := hostname.RegistrableDomain(analyzer.NormalizeDomain(ref))
			if target == "" {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			if looksConfusable(target, candidate) {
				seen[target] = struct{}{}
				out = append(out, target)
			}
		}
	}
	return out
}

// hasMixedScript reports whether a host contains characters from multiple scripts.
//
// Args:
//
//	host: Unicode hostname to analyze.
//
// Returns:
//
//	bool: true when two or more distinct Unicode scripts are detected.
//
// Behavior:
//  1. Splits the host into labels and iterates each rune.
//  2. Detects the script category for each rune via detectScript.
//  3. Tracks unique scripts and returns true as soon as two or more are observed.
func hasMixedScript(host string) bool {
	if host == "" {
		return false
	}
	scripts := make(map[string]struct{})
	for _, label := range strings.Split(host, ".") {
		for _, r := range label {
			script := detectScript(r)
			if script == "" {
				continue
			}
			scripts[script] = struct{}{}
			if len(scripts) >= 2 {
				return true
			}
		}
	}
	return false
}

func detectScript(r rune) string {
	switch {
	case unicode.In(r, unicode.Latin):
		return "latin"
	case unicode.In(r, unicode.Cyrillic):
		return "cyrillic"
	case unicode.In(r, unicode.Greek):
		return "greek"
	case unicode.In(r, unicode.Hiragana):
		return "hiragana"
	case unicode.In(r, unicode.Katakana):
		return "katakana"
	case unicode.In(r, unicode.Han):
		return "han"
	default:
		return ""
	}
}

// looksConfusable reports whether candidate differs from target but shares its confusable
// skeleton and carries homoglyphs.
func looksConfusable(target, candidate string) bool {
	target = strings.TrimSpace(target)
	candidate = strings.TrimSpace(candidate)
	if target == "" || candidate == "" || target == candidate {
		return false
	}
	if !confusables.Confusable(strings.ToLower(target), strings.ToLower(candidate)) {
		return false
	}
	return confusables.ContainsHomoglyphs(target) || confusables.ContainsHomoglyphs(candidate)
}
