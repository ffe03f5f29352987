package store

import (
	"context"
	"crypto"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

// DiskStore is a Store backed by a plain directory tree: one file per
// object under objects/, keyed by its hex hash, and one file per ref at
// the path given by the ref's full name, each '/'-separated segment one
// directory level (refs/heads/main -> refs/heads/main). It exists for the reference
// CLI's clone/fetch destination directory — the engine and its tests use
// InMemoryStore exclusively.
type DiskStore struct {
	mu   sync.RWMutex
	root string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore returns a DiskStore rooted at dir, creating dir and its
// objects/refs subdirectories if they don't already exist.
func NewDiskStore(dir string) (*DiskStore, error) {
	for _, sub := range []string{"objects", "refs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", sub, err)
		}
	}
	return &DiskStore{root: dir}, nil
}

func (s *DiskStore) objectPath(h hash.Hash) string {
	return filepath.Join(s.root, "objects", h.String())
}

// refPath maps a ref's full name to a file path, one path component per
// '/'-separated segment (e.g. refs/heads/main -> refs/heads/main).
func (s *DiskStore) refPath(name protocol.RefName) string {
	return filepath.Join(append([]string{s.root}, strings.Split(name.FullName, "/")...)...)
}

// objectHeader returns the one-line "<kind>\n" header (the numeric object
// type) that precedes the raw payload in an on-disk object file, so the
// type survives a round trip without relying on the filename.
func objectHeader(kind object.Type) string {
	return strconv.Itoa(int(kind)) + "\n"
}

func (s *DiskStore) HasObject(ctx context.Context, h hash.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.objectPath(h))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *DiskStore) ReadObject(ctx context.Context, h hash.Hash) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, h)
		}
		return Object{}, err
	}

	idx := indexByte(data, '\n')
	if idx < 0 {
		return Object{}, fmt.Errorf("store: object %s missing header", h)
	}
	kind, err := strconv.Atoi(string(data[:idx]))
	if err != nil {
		return Object{}, fmt.Errorf("store: object %s has malformed header: %w", h, err)
	}

	return Object{Kind: object.Type(kind), Payload: data[idx+1:]}, nil
}

func (s *DiskStore) WriteObject(ctx context.Context, obj Object) (hash.Hash, error) {
	h, err := hash.Object(crypto.SHA1, obj.Kind, obj.Payload)
	if err != nil {
		return nil, fmt.Errorf("hashing object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.objectPath(h)
	if _, err := os.Stat(path); err == nil {
		return h, nil // content-addressed: already there
	}

	contents := append([]byte(objectHeader(obj.Kind)), obj.Payload...)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return nil, fmt.Errorf("store: writing object %s: %w", h, err)
	}
	return h, nil
}

func (s *DiskStore) ListRefs(ctx context.Context) ([]RefEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refsRoot := filepath.Join(s.root, "refs")
	var entries []RefEntry
	err := filepath.WalkDir(refsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name, err := protocol.ParseRefName(filepath.ToSlash(rel))
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h, err := hash.FromHex(strings.TrimSpace(string(data)))
		if err != nil {
			return nil
		}
		entries = append(entries, RefEntry{Name: name, Hash: h})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing refs: %w", err)
	}
	return entries, nil
}

func (s *DiskStore) ReadRef(ctx context.Context, name protocol.RefName) (hash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRefNotFound, name.FullName)
		}
		return nil, err
	}
	return hash.FromHex(strings.TrimSpace(string(data)))
}

func (s *DiskStore) WriteRef(ctx context.Context, name protocol.RefName, newHash hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: creating ref directory: %w", err)
	}
	return os.WriteFile(path, []byte(newHash.String()+"\n"), 0o644)
}

// ReachableFrom walks the same commit/tree/tag structure InMemoryStore
// does, reading each object off disk as it's reached.
func (s *DiskStore) ReachableFrom(ctx context.Context, roots []hash.Hash) ([]hash.Hash, error) {
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

		data, err := os.ReadFile(s.objectPath(h))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("store: reading %s: %w", h, err)
		}
		idx := indexByte(data, '\n')
		if idx < 0 {
			continue
		}
		kindInt, err := strconv.Atoi(string(data[:idx]))
		if err != nil {
			continue
		}
		obj := Object{Kind: object.Type(kindInt), Payload: data[idx+1:]}
		result = append(result, h)

		children, err := childObjects(obj)
		if err != nil {
			return nil, fmt.Errorf("store: walking %s: %w", h, err)
		}
		queue = append(queue, children...)
	}

	return result, nil
}

func indexByte(data []byte, b byte) int {
	for i, c := range data {
		if c == b {
			return i
		}
	}
	return -1
}
