package store

import (
	"bytes"
	"context"
	"crypto"
	"fmt"
	"sync"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

// InMemoryStore is a plain, process-local Store backed by Go maps,
// adapted from nanogit's internal/storage.InMemoryStorage (object map
// keyed by hex hash) plus a ref map for the parts of the store capability
// nanogit left to its caller. It is the default used by the CLI and by
// the engine's own tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	refs    map[string]hash.Hash
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		objects: make(map[string]Object),
		refs:    make(map[string]hash.Hash),
	}
}

func (s *InMemoryStore) HasObject(ctx context.Context, h hash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[h.String()]
	return ok, nil
}

func (s *InMemoryStore) ReadObject(ctx context.Context, h hash.Hash) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[h.String()]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, h)
	}
	return obj, nil
}

func (s *InMemoryStore) WriteObject(ctx context.Context, obj Object) (hash.Hash, error) {
	h, err := hash.Object(crypto.SHA1, obj.Kind, obj.Payload)
	if err != nil {
		return nil, fmt.Errorf("hashing object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[h.String()] = obj
	return h, nil
}

func (s *InMemoryStore) ListRefs(ctx context.Context) ([]RefEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]RefEntry, 0, len(s.refs))
	for name, h := range s.refs {
		refName, err := protocol.ParseRefName(name)
		if err != nil {
			continue
		}
		entries = append(entries, RefEntry{Name: refName, Hash: h})
	}
	return entries, nil
}

func (s *InMemoryStore) ReadRef(ctx context.Context, name protocol.RefName) (hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.refs[name.FullName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRefNotFound, name.FullName)
	}
	return h, nil
}

func (s *InMemoryStore) WriteRef(ctx context.Context, name protocol.RefName, newHash hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[name.FullName] = newHash
	return nil
}

// ReachableFrom walks commit parents, a commit's tree, and tree entries
// breadth-first from roots, returning every object reached. Tag objects
// are followed to their target.
func (s *InMemoryStore) ReachableFrom(ctx context.Context, roots []hash.Hash) ([]hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool)
	var result []hash.Hash
	queue := append([]hash.Hash(nil), roots...)

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		key := h.String()
		if visited[key] {
			continue
		}
		visited[key] = true

		obj, ok := s.objects[key]
		if !ok {
			// A root or referenced object the store doesn't have is
			// skipped rather than erroring; the caller (push's delta
			// base selection) treats an unreachable hash as simply not
			// contributing to the closure.
			continue
		}
		result = append(result, h)

		children, err := childObjects(obj)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", h, err)
		}
		queue = append(queue, children...)
	}

	return result, nil
}

// childObjects returns the hashes an object directly references: a
// commit's tree and parents, a tree's entries, a tag's target. A blob has
// none.
func childObjects(obj Object) ([]hash.Hash, error) {
	switch obj.Kind {
	case object.TypeCommit:
		return parseCommitLinks(obj.Payload)
	case object.TypeTree:
		return parseTreeEntries(obj.Payload)
	case object.TypeTag:
		target, err := parseTagTarget(obj.Payload)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, nil
		}
		return []hash.Hash{target}, nil
	default:
		return nil, nil
	}
}

// parseCommitLinks extracts the "tree <sha>" and every "parent <sha>"
// header line from a commit object's payload, per the plain-text commit
// format ("<key> <value>\n" headers, blank line, then the message).
func parseCommitLinks(payload []byte) ([]hash.Hash, error) {
	var links []hash.Hash

	for _, line := range bytes.Split(payload, []byte("\n")) {
		if len(line) == 0 {
			break // header/message separator
		}
		fields := bytes.SplitN(line, []byte(" "), 2)
		if len(fields) != 2 {
			continue
		}
		switch string(fields[0]) {
		case "tree", "parent":
			h, err := hash.FromHex(string(fields[1]))
			if err != nil {
				return nil, fmt.Errorf("parsing %s link: %w", fields[0], err)
			}
			links = append(links, h)
		}
	}

	return links, nil
}

// parseTreeEntries walks a tree object's binary entry list: repeated
// "<mode> <name>\0<20-byte-hash>" records.
func parseTreeEntries(payload []byte) ([]hash.Hash, error) {
	var entries []hash.Hash

	for len(payload) > 0 {
		nulIdx := bytes.IndexByte(payload, 0)
		if nulIdx < 0 {
			return nil, fmt.Errorf("truncated tree entry header")
		}
		if len(payload) < nulIdx+1+20 {
			return nil, fmt.Errorf("truncated tree entry hash")
		}

		rawHash := payload[nulIdx+1 : nulIdx+1+20]
		entries = append(entries, hash.Hash(append([]byte(nil), rawHash...)))

		payload = payload[nulIdx+1+20:]
	}

	return entries, nil
}

// parseTagTarget extracts the "object <sha>" header of an annotated tag.
func parseTagTarget(payload []byte) (hash.Hash, error) {
	for _, line := range bytes.Split(payload, []byte("\n")) {
		if len(line) == 0 {
			break
		}
		fields := bytes.SplitN(line, []byte(" "), 2)
		if len(fields) == 2 && string(fields[0]) == "object" {
			h, err := hash.FromHex(string(fields[1]))
			if err != nil {
				return nil, fmt.Errorf("parsing tag target: %w", err)
			}
			return h, nil
		}
	}
	return nil, nil
}
