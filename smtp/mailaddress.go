package smtp

import "strings"

// extractPath implements spec.md §9's deliberately loose wire-level address
// grammar: accept "<addr>" between angle brackets, or a bare address up to
// the next space when the brackets are missing, tolerate surrounding
// whitespace and an optional parameter list after the address (MAIL FROM's
// "SIZE=..." being the only one burngate understands, and only to ignore
// it), and reject an empty remainder or an unclosed "<". It also enforces the RFC 5321 §4.5.3.1
// length limits, rejecting an address that exceeds them the same way a
// malformed one is rejected.
//
// rest is everything after the command verb and its following space, e.g.
// for "MAIL FROM:<a@b.com> SIZE=1000" rest is "FROM:<a@b.com> SIZE=1000".
// prefix is "FROM:" or "TO:", matched case-insensitively.
func extractPath(rest, prefix string) (addr string, ok bool) {
	trimmed := strings.TrimSpace(rest)
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return "", false
	}
	remainder := strings.TrimSpace(trimmed[len(prefix):])

	if remainder == "" {
		return "", false
	}

	var raw string
	if remainder[0] == '<' {
		end := strings.IndexByte(remainder, '>')
		if end < 0 {
			return "", false
		}
		raw = remainder[1:end]
		// Anything after the closing bracket is parameters (SIZE=...)
		// and is ignored, per spec.md §9.
	} else {
		// Tolerate missing angle brackets: take up to the next space.
		if sp := strings.IndexByte(remainder, ' '); sp >= 0 {
			raw = remainder[:sp]
		} else {
			raw = remainder
		}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		// Null reverse-path ("MAIL FROM:<>") is valid and represents a
		// bounce, per spec.md's Envelope definition.
		return "", true
	}

	raw = strings.ToLower(raw)
	if !validAddressLength(raw) {
		return "", false
	}

	return raw, true
}

// validAddressLength enforces the RFC 5321 §4.5.3.1 length limits: local
// part at most 64 octets, domain at most 253, and the full mailbox at most
// 254.
func validAddressLength(address string) bool {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return len(address) <= 254
	}
	local, domain := address[:i], address[i+1:]
	if len(local) > 64 || len(domain) > 253 || len(address) > 254 {
		return false
	}
	return true
}

// domainOf returns the part of a lowercased address after the last "@", or
// "" if there is none.
func domainOf(address string) string {
	i := strings.LastIndex(address, "@")
	if i < 0 {
		return ""
	}
	return address[i+1:]
}
