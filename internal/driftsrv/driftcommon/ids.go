package driftcommon

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type IdType int

const (
	ID_TYPE_GENERIC IdType = iota
	ID_TYPE_TENANT
	ID_TYPE_CONNECTOR
)

const shortIdLen = 6
const shortIdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GetUniqueId returns a short human-readable id with a type prefix.
// Not guaranteed unique; callers must check against the store and retry
// on collision.
func GetUniqueId(t IdType) string {
	c, err := gonanoid.Generate(shortIdAlphabet, shortIdLen)
	if err != nil {
		return ""
	}
	switch t {
	case ID_TYPE_TENANT:
		c = "T" + c
	case ID_TYPE_CONNECTOR:
		c = "C" + c
	default:
	}
	return c
}
