package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Permissions carried by API keys.
const (
	PermissionAdmin = "admin"
	PermissionAll   = "*"
)

// hashedKeyPrefix marks a configured key that holds a SHA-256 hex digest
// instead of the raw value.
const hashedKeyPrefix = "sha256:"

// APIKey is a statically configured credential for the administrative
// operations. Key is either the raw value or "sha256:<hex digest>".
type APIKey struct {
	Key         string   `yaml:"key" json:"key"`
	Name        string   `yaml:"name" json:"name"`
	Permissions []string `yaml:"permissions" json:"permissions"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
}

// GenerateAPIKey produces a new random API key in the format rg_<44 url-safe base64 chars>.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 33) // 33 bytes → 44 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return "rg_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPIKey computes the SHA-256 hex digest of a raw API key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether rawKey is this key, in constant time.
func (ak *APIKey) Matches(rawKey string) bool {
	if rawKey == "" {
		return false
	}
	if digest, ok := strings.CutPrefix(ak.Key, hashedKeyPrefix); ok {
		return subtle.ConstantTimeCompare([]byte(strings.ToLower(digest)), []byte(HashAPIKey(rawKey))) == 1
	}
	return subtle.ConstantTimeCompare([]byte(ak.Key), []byte(rawKey)) == 1
}

// HasPermission returns true when the key is enabled and possesses the required permission.
func (ak *APIKey) HasPermission(required string) bool {
	if !ak.Enabled {
		return false
	}
	for _, p := range ak.Permissions {
		switch p {
		case PermissionAll, PermissionAdmin:
			return true
		case required:
			return true
		}
	}
	return false
}

// FindAPIKey returns the configured key matching rawKey, if any.
func FindAPIKey(keys []APIKey, rawKey string) (*APIKey, bool) {
	for i := range keys {
		if keys[i].Matches(rawKey) {
			return &keys[i], true
		}
	}
	return nil, false
}
