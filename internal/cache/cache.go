// Package cache is the persistent memo of computed grids. Artifacts are
// written once under their grid key and never expire or change.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/codec"
	"github.com/mohammed-shakir/pvgrid-cache/internal/cache/keys"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

var ErrNotFound = errors.New("grid not cached")

// CorruptError is an artifact that exists but cannot be served. Callers
// treat it as a miss.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt artifact %s: %v", e.Key, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Backend stores opaque artifact bytes. PutIfAbsent must be atomic with
// respect to readers: a Get never observes a partially written value, and
// an existing value is never replaced.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrNotFound when absent
	PutIfAbsent(ctx context.Context, key string, val []byte) (bool, error)
}

// Remover is implemented by backends that can drop a corrupt artifact so a
// fresh one can take its place.
type Remover interface {
	Remove(ctx context.Context, key string) error
}

// Pinger is implemented by backends that depend on a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Store struct {
	backend   Backend
	opTimeout time.Duration
	logger    *slog.Logger
}

func NewStore(b Backend, opTimeout time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{backend: b, opTimeout: opTimeout, logger: logger}
}

// returns context with timeout if set
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Load returns the artifact for k, ErrNotFound, or a *CorruptError.
func (s *Store) Load(ctx context.Context, k keys.GridKey) (*codec.Artifact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name := k.String()
	b, err := s.backend.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		observability.ObserveCacheLookup("store", false)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache load %s: %w", name, err)
	}
	a, err := codec.Decode(b)
	if err != nil {
		observability.ObserveCacheLookup("store", false)
		s.logger.WarnContext(ctx, "corrupt grid artifact, treating as miss", "key", name, "bytes", len(b), "err", err)
		s.remove(ctx, name)
		return nil, &CorruptError{Key: name, Err: err}
	}
	if a.Key().String() != name {
		observability.ObserveCacheLookup("store", false)
		s.logger.WarnContext(ctx, "grid artifact under foreign key, treating as miss", "key", name, "owner", a.Key().String())
		s.remove(ctx, name)
		return nil, &CorruptError{Key: name, Err: fmt.Errorf("artifact belongs to %s", a.Key())}
	}
	observability.ObserveCacheLookup("store", true)
	return a, nil
}

func (s *Store) remove(ctx context.Context, name string) {
	r, ok := s.backend.(Remover)
	if !ok {
		return
	}
	if err := r.Remove(ctx, name); err != nil {
		s.logger.WarnContext(ctx, "remove corrupt artifact", "key", name, "err", err)
	}
}

// Save stores encoded artifact bytes under k. It reports false when another
// writer got there first; that is not an error. Callers encode once and hand
// the same bytes to every tier.
func (s *Store) Save(ctx context.Context, k keys.GridKey, b []byte) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	name := k.String()
	wrote, err := s.backend.PutIfAbsent(ctx, name, b)
	if err != nil {
		return false, fmt.Errorf("cache put %s: %w", name, err)
	}
	if !wrote {
		s.logger.DebugContext(ctx, "grid already cached, keeping first write", "key", name)
	}
	return wrote, nil
}

// Ping checks the backend when it is remote; local backends are always up.
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.backend.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
