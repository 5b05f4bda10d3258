// Package domainset implements the accepted-domain matching rule used at
// RCPT TO time: a recipient domain is accepted if it equals a configured
// domain, or if a configured domain is a proper dot-bounded suffix of it.
package domainset

import "strings"

// Set is an immutable, lowercased list of accepted domains.
type Set struct {
	domains map[string]bool
}

// New builds a Set from raw domain strings, lowercasing and deduplicating
// them. Empty entries are ignored.
func New(domains []string) Set {
	m := make(map[string]bool, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		m[d] = true
	}
	return Set{domains: m}
}

// Accepts reports whether domain d is covered by the set: either it equals
// one of the configured domains, or some configured domain e is a proper
// suffix of d with a dot boundary (d ends with "."+e).
//
// This is what keeps "abc.tempy.email" matching a configured "tempy.email"
// while refusing "eviltempy.email".
func (s Set) Accepts(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return false
	}
	if s.domains[d] {
		return true
	}
	for e := range s.domains {
		if strings.HasSuffix(d, "."+e) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no domains configured.
func (s Set) Empty() bool {
	return len(s.domains) == 0
}
