package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrNoSnapshot is returned when no catalog has been loaded yet.
var ErrNoSnapshot = errors.New("catalog not loaded")

//go:embed default.yaml
var defaultCatalog []byte

// Default parses the embedded default catalog.
func Default() (*Snapshot, error) {
	return Parse(defaultCatalog, FormatYAML, "embedded:default.yaml")
}

// Source produces a fresh snapshot.
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
	String() string
}

// FileSource loads the catalog from a YAML or JSON file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadFile(f.Path)
}

func (f FileSource) String() string { return f.Path }

// EmbeddedSource loads the built-in default catalog.
type EmbeddedSource struct{}

// Load implements Source.
func (EmbeddedSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Default()
}

func (EmbeddedSource) String() string { return "embedded" }

// ReloadHook is called after every reload attempt.
type ReloadHook func(snap *Snapshot, err error)

// Store holds the current snapshot. Readers never block writers.
type Store struct {
	current atomic.Pointer[Snapshot]
	source  Source
	logger  *slog.Logger
	hooks   []ReloadHook
}

// NewStore creates a store backed by source. Call Reload before use.
func NewStore(source Source, logger *slog.Logger, hooks ...ReloadHook) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger, hooks: hooks}
}

// NewStaticStore returns a store preloaded with snap and no source.
func NewStaticStore(snap *Snapshot) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(snap)
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Reload loads a fresh snapshot from the source and swaps it in. On failure
// the previous snapshot stays current.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, errors.New("catalog store has no source")
	}

	snap, err := s.source.Load(ctx)
	if err != nil {
		err = fmt.Errorf("reload catalog from %s: %w", s.source, err)
		s.logger.Error("Catalog reload failed", "source", s.source.String(), "error", err)
		s.notify(nil, err)
		return nil, err
	}

	prev := s.current.Swap(snap)
	attrs := []any{"source", s.source.String(), "version", snap.Version(), "rules", snap.Len()}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Version())
	}
	s.logger.Info("Catalog loaded", attrs...)
	s.notify(snap, nil)
	return snap, nil
}

func (s *Store) notify(snap *Snapshot, err error) {
	for _, hook := range s.hooks {
		hook(snap, err)
	}
}
