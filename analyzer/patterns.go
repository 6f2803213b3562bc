package analyzer

import "regexp"

// suspiciousPatterns are keyword combinations common in credential-harvesting URLs.
// Each fragment pair may be joined by an optional '-', '_' or '.'.
var suspiciousPatterns = []string{
	`verify[-_.]?(account|login|user)?`,
	`login[-_.]?secure`,
	`free[-_.]?gift`,
	`update[-_.]?billing`,
	`confirm[-_.]?payment`,
	`secure[-_.]?paypal`,
	`account[-_.]?verify`,
	`verify-login`,
	`verify-user`,
	`auth[-_.]?check`,
	`password[-_.]?reset`,
}

var compiledPatterns = compilePatterns(suspiciousPatterns)

func compilePatterns(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

// URLHasSuspiciousPattern reports whether any phishing keyword pattern matches anywhere in
// the raw URL. Matching is case-insensitive.
func URLHasSuspiciousPattern(rawURL string) bool {
	for _, rx := range compiledPatterns {
		if rx.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// SuspiciousPatterns returns a copy of the keyword patterns, without the case-insensitive flag.
func SuspiciousPatterns() []string {
	out := make([]string, len(suspiciousPatterns))
	copy(out, suspiciousPatterns)
	return out
}
