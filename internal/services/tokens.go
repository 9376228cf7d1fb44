package services

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// inviteTokenBytes is the entropy of a plaintext invite token.
const inviteTokenBytes = 32

// publicIDBytes is the entropy of a respondent-facing session id.
const publicIDBytes = 18

var respondentKeyRE = regexp.MustCompile(`^[A-Za-z0-9_-]{12,128}$`)

// NewInviteToken returns a fresh URL-safe plaintext token and its hash.
// Only the hash is ever persisted.
func NewInviteToken() (token, hash string, err error) {
	token, err = randomToken(inviteTokenBytes)
	if err != nil {
		return "", "", err
	}
	return token, HashToken(token), nil
}

// HashToken returns the hex BLAKE2b-256 digest of a presented token.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// InviteURL joins the public base URL with the /s/<token> link shape.
func InviteURL(base, token string) string {
	return strings.TrimRight(base, "/") + "/s/" + token
}

func newPublicID() (string, error) { return randomToken(publicIDBytes) }

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidRespondentKey reports whether k is an acceptable pseudonymous key.
func ValidRespondentKey(k string) bool { return respondentKeyRE.MatchString(k) }
