package vizsession

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// idAlphabet is the character set of generated identifier payloads and
	// secret keys. It never contains signatureDelimiter.
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// idLength gives roughly 262 bits of entropy with idAlphabet.
	idLength = 44

	signatureDelimiter = '.'
)

// GenerateSessionID returns a fresh random session identifier. When signed is
// true the identifier carries an HMAC-SHA256 signature over its payload,
// keyed with secretKey.
func GenerateSessionID(secretKey []byte, signed bool) (string, error) {
	payload, err := gonanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", err
	}
	if !signed {
		return payload, nil
	}
	return SignSessionID(payload, secretKey), nil
}

// SignSessionID appends the signature of payload to it.
func SignSessionID(payload string, secretKey []byte) string {
	return payload + string(signatureDelimiter) + base64.RawURLEncoding.EncodeToString(signature(payload, secretKey))
}

// CheckSessionIDSignature reports whether id is acceptable under the signing
// policy. With signed false every identifier is accepted. Otherwise the
// signature suffix must match the payload under secretKey; malformed
// identifiers are rejected the same way as bad signatures.
func CheckSessionIDSignature(id string, secretKey []byte, signed bool) bool {
	if !signed {
		return true
	}

	// The encoded signature never contains the delimiter, so the last one
	// separates it from the payload.
	i := strings.LastIndexByte(id, signatureDelimiter)
	if i <= 0 || i == len(id)-1 {
		return false
	}
	payload, encoded := id[:i], id[i+1:]

	if base64.RawURLEncoding.DecodedLen(len(encoded)) != sha256.Size {
		return false
	}
	provided, err := base64.RawURLEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return false
	}

	return hmac.Equal(signature(payload, secretKey), provided)
}

// GenerateSecretKey returns a random key suitable for signing session
// identifiers.
func GenerateSecretKey() (string, error) {
	return gonanoid.Generate(idAlphabet, idLength)
}

func signature(payload string, secretKey []byte) []byte {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
