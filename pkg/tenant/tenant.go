// Package tenant defines the addressing scheme for match collections.
//
// Every collection is addressed by exactly one triple: the tenant's category
// (public or private), its numeric ID, and the collection kind (known or
// unknown). The triple serializes to a stable path used both as the durable
// storage location and as the cache key.
package tenant

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Category classifies a tenant as a public body or a private company.
type Category string

const (
	CategoryPublic  Category = "public"
	CategoryPrivate Category = "private"
)

// Kind distinguishes the two collections every tenant owns: identities the
// tenant has registered (known) and auto-registered strangers (unknown).
type Kind string

const (
	KindKnown   Kind = "known"
	KindUnknown Kind = "unknown"
)

// Common errors.
var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidTenantID = errors.New("invalid tenant ID")
	ErrInvalidKind     = errors.New("invalid collection kind")
	ErrInvalidPath     = errors.New("invalid collection path")
)

// Key addresses exactly one collection.
type Key struct {
	Category Category `json:"category"`
	ID       int      `json:"tenant_id"`
	Kind     Kind     `json:"kind"`
}

// NewKey builds and validates a key.
func NewKey(category Category, id int, kind Kind) (Key, error) {
	k := Key{Category: category, ID: id, Kind: kind}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Validate checks the triple against the addressing contract. Validation runs
// before any storage access, so malformed input fails fast.
func (k Key) Validate() error {
	switch k.Category {
	case CategoryPublic, CategoryPrivate:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCategory, k.Category)
	}
	if k.ID < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTenantID, k.ID)
	}
	switch k.Kind {
	case KindKnown, KindUnknown:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k.Kind)
	}
	return nil
}

// Path returns the stable storage path for the collection relative to the
// data directory: "category/id/kind".
func (k Key) Path() string {
	return path.Join(string(k.Category), strconv.Itoa(k.ID), string(k.Kind))
}

// String returns the cache-key form "category_id_kind".
func (k Key) String() string {
	return fmt.Sprintf("%s_%d_%s", k.Category, k.ID, k.Kind)
}

// ParsePath parses "category/id/kind" into a validated key.
func ParsePath(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: want category/id/kind, got %q", ErrInvalidPath, s)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("%w: tenant ID %q is not an integer", ErrInvalidPath, parts[1])
	}
	return NewKey(Category(parts[0]), id, Kind(parts[2]))
}
