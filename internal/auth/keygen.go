package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: ak_{prefix}_{secret}
// Example: ak_7a9f3b1c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	KeyPrefixLen = 8  // hex encoded 4 bytes
	KeySecretLen = 32 // hex encoded 16 bytes
	keyScheme    = "ak"

	// APIKeyPrefix starts every key, which tells keys apart from session
	// tokens in an Authorization header.
	APIKeyPrefix = keyScheme + "_"
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")

	keyFormatRegex = regexp.MustCompile(`^ak_([a-f0-9]{8})_([a-f0-9]{32})$`)
)

// GeneratedKey contains the parts of a newly generated API key.
type GeneratedKey struct {
	Plaintext string // Full key (show once only)
	Hash      string // SHA-256 of the plaintext, hex encoded
	Prefix    string // visible prefix, safe to log
}

// GenerateAPIKey creates a new API key with 128 bits of secret entropy.
// The plaintext is returned once; only the hash is meant to be stored.
func GenerateAPIKey() (*GeneratedKey, error) {
	prefixBytes := make([]byte, KeyPrefixLen/2)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, KeySecretLen/2)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	plaintext := fmt.Sprintf("%s_%s_%s", keyScheme, prefix, secret)

	return &GeneratedKey{
		Plaintext: plaintext,
		Hash:      HashAPIKey(plaintext),
		Prefix:    prefix,
	}, nil
}

// HashAPIKey returns the lookup hash for a plaintext key.
// Keys carry enough entropy that a fast digest is sufficient.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ParsedKey contains the parsed parts of an API key.
type ParsedKey struct {
	Prefix string
	Secret string
}

// ParseAPIKey extracts the components from a plaintext API key.
func ParseAPIKey(key string) (*ParsedKey, error) {
	matches := keyFormatRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, ErrInvalidKeyFormat
	}

	return &ParsedKey{
		Prefix: matches[1],
		Secret: matches[2],
	}, nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}
