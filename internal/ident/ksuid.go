package ident

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// KSUIDGenerator generates KSUID (K-Sortable Unique IDentifier) IDs.
// Sorting them lexicographically approximates creation order, which keeps
// room logs inspectable without relying on the display timestamp.
type KSUIDGenerator struct{}

func (g *KSUIDGenerator) Generate() (string, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate KSUID: %w", err)
	}
	return id.String(), nil
}

func (g *KSUIDGenerator) Scheme() string { return "ksuid" }
