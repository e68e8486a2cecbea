// Package secret generates opaque bearer and claim secrets.
//
// Secrets are 32 bytes of crypto/rand output encoded with unpadded URL-safe
// base64, yielding 43-character strings that are safe to paste into headers
// and links.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// secretBytes is the entropy carried by each secret.
const secretBytes = 32

// New generates an unguessable URL-safe secret string.
func New() (string, error) {
	var raw [secretBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
