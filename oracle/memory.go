package oracle

import (
	"context"

	"github.com/TempyEmail/burngate/helpers"
)

// Memory is a fixed, in-memory Oracle backed by a set of known-good
// addresses. It exists for local development and tests that want recipient
// existence checks without a live Redis instance.
//
// Adapted from the teacher's user.UserDB (user/user_db.go): the same shape —
// a struct wrapping a map, one existence-style method, one JSON loader — now
// answering Oracle.Lookup instead of an AUTH LOGIN credential store.
type Memory struct {
	Addresses map[string]bool
}

// NewMemory builds a Memory oracle from a list of lowercased addresses.
func NewMemory(addresses []string) *Memory {
	m := &Memory{Addresses: make(map[string]bool, len(addresses))}
	for _, a := range addresses {
		m.Addresses[a] = true
	}
	return m
}

// Lookup implements Oracle. Memory never fails closed with Unavailable: an
// absent address is simply NotFound.
func (m *Memory) Lookup(_ context.Context, address string) Result {
	if m.Addresses[address] {
		return Exists
	}
	return NotFound
}

// Add registers an address as existing.
func (m *Memory) Add(address string) {
	if m.Addresses == nil {
		m.Addresses = make(map[string]bool)
	}
	m.Addresses[address] = true
}

// LoadMemoryFixture reads a JSON fixture of the form {"addresses": [...]}
// into a Memory oracle, using the teacher's generic helpers.DecodeFile
// (helpers/config_reader.go) — the one-function, wrapped-error JSON loader
// the teacher used for its own file-backed UserDB.
func LoadMemoryFixture(file string) (*Memory, error) {
	var fixture struct {
		Addresses []string `json:"addresses"`
	}

	if err := helpers.DecodeFile(file, &fixture); err != nil {
		return nil, err
	}

	return NewMemory(fixture.Addresses), nil
}
