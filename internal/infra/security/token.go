package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	appauth "propchat/internal/app/services/auth"
)

// SessionTokenPrefix marks opaque session tokens so they can be told apart
// from JWTs in logs and rejected early when malformed.
const SessionTokenPrefix = "pcs_"

const defaultTokenBytes = 32

// RandomTokenGenerator issues "pcs_" + base64url(Size random bytes).
type RandomTokenGenerator struct {
	Size int
}

func (g RandomTokenGenerator) NewToken() (string, error) {
	buf := make([]byte, g.size())
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: session token entropy: %w", err)
	}
	return SessionTokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// WellFormed reports whether token could have come from NewToken.
func (g RandomTokenGenerator) WellFormed(token string) bool {
	body, ok := strings.CutPrefix(token, SessionTokenPrefix)
	if !ok {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil && len(raw) == g.size()
}

func (g RandomTokenGenerator) size() int {
	if g.Size <= 0 {
		return defaultTokenBytes
	}
	return g.Size
}

var _ appauth.TokenGenerator = RandomTokenGenerator{}
