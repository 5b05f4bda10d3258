// Package oracle implements the Recipient Oracle: the RCPT TO existence
// check against an external key/value store, per spec.md §4.2.
package oracle

import (
	"context"
	"fmt"
	"strings"
)

// Result is the verdict returned by a Lookup.
type Result int

const (
	// Exists means the address was found by the configured tier(s).
	Exists Result = iota
	// NotFound means every configured tier reported absence.
	NotFound
	// Unavailable means a transport or protocol error occurred; the
	// Session Engine must fail closed on this result.
	Unavailable
)

func (r Result) String() string {
	switch r {
	case Exists:
		return "Exists"
	case NotFound:
		return "NotFound"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Mode selects which tier(s) a Lookup consults.
type Mode int

const (
	ModeKey Mode = iota
	ModeSet
	ModeBoth
)

// ParseMode parses the REDIS_CHECK_MODE environment value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "key":
		return ModeKey, nil
	case "set":
		return ModeSet, nil
	case "both":
		return ModeBoth, nil
	default:
		return 0, fmt.Errorf("oracle: invalid REDIS_CHECK_MODE %q", s)
	}
}

// Oracle answers whether a lowercased full email address exists.
type Oracle interface {
	Lookup(ctx context.Context, address string) Result
}

// keyForAddress substitutes the {address} placeholder in pattern with addr.
func keyForAddress(pattern, addr string) string {
	return strings.ReplaceAll(pattern, "{address}", addr)
}
