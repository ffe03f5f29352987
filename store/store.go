// Package store defines the narrow object/ref database capability the
// protocol engine depends on, and a plain in-memory implementation of it.
// The engine never reaches into a concrete store's representation — every
// read or write crosses this interface, so a caller can swap in a
// disk-backed or database-backed store without touching the engine.
package store

import (
	"context"
	"errors"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

// ErrObjectNotFound is returned by ReadObject for a hash the store does
// not have.
var ErrObjectNotFound = errors.New("object not found")

// ErrRefNotFound is returned by ReadRef for a ref the store does not have.
var ErrRefNotFound = errors.New("ref not found")

// Object is a single content-addressed Git object as the store holds it:
// its kind and raw (non-delta-resolved) payload.
type Object struct {
	Kind    object.Type
	Payload []byte
}

// Store is the capability surface the protocol engine needs from an
// object/ref database (spec.md §6). Implementations must be safe for
// concurrent use by independent conversations; the engine performs no
// locking of its own around store calls.
type Store interface {
	// HasObject reports whether an object is present.
	HasObject(ctx context.Context, h hash.Hash) (bool, error)

	// ReadObject returns an object's kind and payload.
	ReadObject(ctx context.Context, h hash.Hash) (Object, error)

	// WriteObject stores an object, returning its content hash. Writing
	// an object that already exists is a no-op that still returns its
	// hash (content addressing makes this idempotent).
	WriteObject(ctx context.Context, obj Object) (hash.Hash, error)

	// ListRefs returns every ref currently known to the store.
	ListRefs(ctx context.Context) ([]RefEntry, error)

	// ReadRef returns the hash a ref currently points at, or
	// ErrRefNotFound.
	ReadRef(ctx context.Context, name protocol.RefName) (hash.Hash, error)

	// WriteRef sets a ref to point at newHash, creating it if absent.
	WriteRef(ctx context.Context, name protocol.RefName, newHash hash.Hash) error

	// ReachableFrom returns every object hash reachable from roots,
	// walking commit parents, tree entries, and tag targets. Used by the
	// push path to compute which objects the remote already has (so it
	// need not receive them again) and by negotiators that walk ancestry.
	ReachableFrom(ctx context.Context, roots []hash.Hash) ([]hash.Hash, error)
}

// RefEntry is one (name, hash) pair as returned by ListRefs.
type RefEntry struct {
	Name protocol.RefName
	Hash hash.Hash
}

// storeKey is the context key under which a Store is threaded through the
// high-level git operations, following nanogit's storage.ToContext pattern.
type storeKey struct{}

// ToContext attaches a Store to ctx.
func ToContext(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext retrieves the Store attached to ctx, or nil if none was set.
func FromContext(ctx context.Context) Store {
	s, _ := ctx.Value(storeKey{}).(Store)
	return s
}
