// Package avatar resolves default avatars and hosts uploaded ones.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const gravatarBase = "https://www.gravatar.com/avatar/"

// Gravatar derives Gravatar image URLs from email addresses.
type Gravatar struct {
	base     string
	size     int
	fallback string
}

// NewGravatar returns a lookup producing 250px identicons for unknown addresses.
func NewGravatar() *Gravatar {
	return &Gravatar{base: gravatarBase, size: 250, fallback: "identicon"}
}

// Lookup returns the avatar URL for email.
func (g *Gravatar) Lookup(_ context.Context, email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", errors.New("avatar: email is empty")
	}
	sum := sha256.Sum256([]byte(normalized))
	query := url.Values{}
	query.Set("s", strconv.Itoa(g.size))
	query.Set("d", g.fallback)
	return g.base + hex.EncodeToString(sum[:]) + "?" + query.Encode(), nil
}
