// Package id generates compact random identifiers.
//
// Identifiers are 16 random bytes carrying UUIDv4 version and variant bits,
// encoded as lowercase unpadded base32 (26 characters). They are URL-safe and
// sortable only by accident; callers must not rely on ordering.
package id

import (
	crand "crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a new random identifier.
func NewID() (string, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random id bytes: %w", err)
	}

	// UUIDv4 version and variant bits
	b[6] = (b[6] & 0x0F) | 0x40
	b[8] = (b[8] & 0x3F) | 0x80

	return strings.ToLower(encoding.EncodeToString(b[:])), nil
}
