// Package hostname normalizes page hostnames and resolves their registrable domain.
package hostname

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ETLDPlusOne resolves the effective top-level domain plus one label for the supplied host.
//
// Args:
//
//	host: raw host or host:port string captured from the browser.
//
// Returns:
//
//	string: registrable domain (eTLD+1) of the host.
//	error: non-nil when publicsuffix cannot classify the host (e.g., IPs, invalid names).
//
// Behavior:
//  1. Normalizes the host via sanitizeHost to trim whitespace, lowercase, and drop ports.
//  2. Delegates to publicsuffix.EffectiveTLDPlusOne to compute the registrable domain.
//  3. Bubbles up any error from the publicsuffix resolver to the caller.
func ETLDPlusOne(host string) (string, error) {
	canonical := sanitizeHost(host)
	return publicsuffix.EffectiveTLDPlusOne(canonical)
}

// Normalize produces the hostname form used for scoring.
//
// Args:
//
//	host: hostname as parsed from the page URL (no port).
//
// Returns:
//
//	string: lowercase hostname without one leading "www." label.
//
// Behavior:
//  1. Lowercases and trims the host.
//  2. Strips one leading "www." label.
//  3. Keeps a trailing dot, so "example.com." scores as the browser reports it.
func Normalize(host string) string {
	clean := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(clean, "www.")
}

// RegistrableDomain returns the eTLD+1 for host, or "" when it cannot be determined.
func RegistrableDomain(host string) string {
	value, err := ETLDPlusOne(host)
	if err != nil {
		return ""
	}
	return strings.ToLower(value)
}

// sanitizeHost normalizes host strings for consistent comparisons.
//
// Args:
//
//	host: potentially mixed-case host, optionally containing whitespace, trailing dots, or ports.
//
// Returns:
//
//	string: lowercase host with surrounding whitespace removed, ports stripped, and no trailing dot.
//
// Behavior:
//  1. Trims leading/trailing whitespace and a single trailing dot commonly found in FQDNs.
//  2. Removes any :port suffix to ensure only the hostname is compared.
//  3. Lowercases the result to allow case-insensitive host matching upstream.
func sanitizeHost(host string) string {
	clean := strings.TrimSpace(host)
	if colon := strings.Index(clean, ":"); colon >= 0 {
		clean = clean[:colon]
	}
	clean = strings.TrimSuffix(clean, ".")
	return strings.ToLower(clean)
}
