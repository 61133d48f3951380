package spool

import "github.com/google/uuid"

// Identifier is the unique token assigned to a stored item. It is always
// safe to use verbatim as a single file name component.
type Identifier string

func (id Identifier) String() string { return string(id) }

// Generator produces a fresh Identifier per call. Implementations must be
// safe for concurrent use.
type Generator interface {
	NewIdentifier() Identifier
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func() Identifier

// NewIdentifier calls f.
func (f GeneratorFunc) NewIdentifier() Identifier { return f() }

// UUIDGenerator issues random (version 4) UUIDs in their canonical
// 36-character form.
type UUIDGenerator struct{}

// NewIdentifier returns a new random UUID.
func (UUIDGenerator) NewIdentifier() Identifier {
	return Identifier(uuid.NewString())
}
