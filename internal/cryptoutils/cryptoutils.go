package cryptoutils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

const (
	hashCost   = bcrypt.DefaultCost
	apiKeySize = 32
)

// HashAPIKey returns the bcrypt hash stored in API_KEY_HASH.
func HashAPIKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), hashCost)
}

func CompareHashAndKey(hashed []byte, key string) error {
	return bcrypt.CompareHashAndPassword(hashed, []byte(key))
}

func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func Sha256(s string) string {
	hash := sha256.Sum256([]byte(s))
	return base64.URLEncoding.EncodeToString(hash[:])
}

// XApiKey generates a new random shared secret.
func XApiKey() string {
	b, err := RandomBytes(apiKeySize)
	if err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
