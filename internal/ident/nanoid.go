package ident

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDSize = 21

// NanoIDGenerator generates NanoID identifiers with the default alphabet.
type NanoIDGenerator struct{}

func (g *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.New(nanoIDSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate NanoID: %w", err)
	}
	return id, nil
}

func (g *NanoIDGenerator) Scheme() string { return "nanoid" }
