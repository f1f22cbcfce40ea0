package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Key is an admin API key record. Only the HMAC-SHA256 hash of the key is
// stored; the plaintext key never touches the database.
type Key struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
	Active  bool
}

// HasScope reports whether the key grants the given scope.
func (k *Key) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their stored hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*Key, error)
}
