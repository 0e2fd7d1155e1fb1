// Package ident provides the message identifier generators the relay can
// be configured with. Every scheme yields identifiers that are unique
// independent of wall-clock resolution, so rapid sends in one room can
// never collide.
package ident

import "fmt"

// Generator produces opaque unique identifiers.
type Generator interface {
	Generate() (string, error)
	Scheme() string
}

// New returns the generator for the given scheme. Supported schemes:
// ksuid (default, k-sortable), ulid, uuid, nanoid.
func New(scheme string) (Generator, error) {
	switch scheme {
	case "", "ksuid":
		return &KSUIDGenerator{}, nil
	case "ulid":
		return NewULIDGenerator(), nil
	case "uuid":
		return &UUIDGenerator{}, nil
	case "nanoid":
		return &NanoIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id scheme: %s", scheme)
	}
}
