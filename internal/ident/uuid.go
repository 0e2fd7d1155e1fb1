package ident

import "github.com/google/uuid"

// UUIDGenerator generates random (version 4) UUIDs.
type UUIDGenerator struct{}

func (g *UUIDGenerator) Generate() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (g *UUIDGenerator) Scheme() string { return "uuid" }
