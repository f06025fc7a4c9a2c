// Package startctx persists the context captured when a subagent starts so
// the stop hook, running in a separate process, can read it back.
package startctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agenthooks/internal/model"

	json "github.com/goccy/go-json"
	"github.com/gofrs/flock"
)

const (
	// DefaultLockTimeout bounds how long a mutation waits for the document lock.
	DefaultLockTimeout = 5 * time.Second
	// DefaultTTL is the age after which an unconsumed context is discarded.
	DefaultTTL = 24 * time.Hour

	lockRetryInterval = 50 * time.Millisecond
)

// DefaultPath returns the store document location for a project.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ".claude", "state", "subagent-contexts.json")
}

// Store is a JSON document of start contexts keyed by agent id.
type Store struct {
	path        string
	lockTimeout time.Duration
	ttl         time.Duration
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets the bounded wait for the document lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithTTL sets the age after which Save drops stale entries. Zero disables pruning.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// New returns a store backed by the document at path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lockTimeout: DefaultLockTimeout,
		ttl:         DefaultTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Save records sc under id, replacing any previous entry, and drops entries
// older than the store TTL.
func (s *Store) Save(ctx context.Context, id string, sc model.StartContext) error {
	if id == "" {
		return errors.New("save start context: empty agent id")
	}
	return s.update(ctx, func(doc map[string]model.StartContext) bool {
		doc[id] = sc
		if s.ttl > 0 {
			prune(doc, s.now().Add(-s.ttl))
		}
		return true
	})
}

// Load returns the context saved under id. A missing or unreadable document
// reads as absent.
func (s *Store) Load(id string) (model.StartContext, bool) {
	doc, err := s.read()
	if err != nil {
		return model.StartContext{}, false
	}
	sc, ok := doc[id]
	return sc, ok
}

// Delete removes the entry for id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.update(ctx, func(doc map[string]model.StartContext) bool {
		if _, ok := doc[id]; !ok {
			return false
		}
		delete(doc, id)
		return true
	})
}

// All returns every saved context. A missing or unreadable document reads as empty.
func (s *Store) All() map[string]model.StartContext {
	doc, err := s.read()
	if err != nil {
		return map[string]model.StartContext{}
	}
	return doc
}

// Prune removes entries whose timestamp is older than maxAge and reports how
// many were dropped.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	removed := 0
	err := s.update(ctx, func(doc map[string]model.StartContext) bool {
		removed = prune(doc, s.now().Add(-maxAge))
		return removed > 0
	})
	return removed, err
}

func prune(doc map[string]model.StartContext, cutoff time.Time) int {
	n := 0
	for id, sc := range doc {
		if !sc.Timestamp.IsZero() && sc.Timestamp.Before(cutoff) {
			delete(doc, id)
			n++
		}
	}
	return n
}

// update runs a locked read-modify-write cycle. fn reports whether the
// document changed and must be written back.
func (s *Store) update(ctx context.Context, fn func(map[string]model.StartContext) bool) error {
	lock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer lock.Unlock() //nolint:errcheck

	doc, err := s.read()
	if err != nil {
		// A corrupt document is replaced rather than blocking every later save.
		doc = map[string]model.StartContext{}
	}
	if !fn(doc) {
		return nil
	}
	return s.write(doc)
}

func (s *Store) lock(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire start context lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("timeout waiting for start context lock %s", lock.Path())
	}
	return lock, nil
}

func (s *Store) read() (map[string]model.StartContext, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]model.StartContext{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read start contexts: %w", err)
	}

	doc := map[string]model.StartContext{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode start contexts: %w", err)
	}
	return doc, nil
}

func (s *Store) write(doc map[string]model.StartContext) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode start contexts: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// writeFileAtomic writes to a sibling temp file and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write start contexts: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace start contexts: %w", err)
	}
	return nil
}
