// Package localstore is the single-client backend: every operation runs under
// one mutex, so check-and-write steps never interleave. State optionally
// survives restarts in a cbor snapshot file.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"blocktix/internal/status"
	"blocktix/internal/store"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type entry struct {
	ID   string `cbor:"id"`
	Data []byte `cbor:"data"`
	Rev  int64  `cbor:"rev"`
	Seq  int64  `cbor:"seq"`
}

type snapshotFile struct {
	Seq         int64              `cbor:"seq"`
	Collections map[string][]entry `cbor:"collections"`
}

type Store struct {
	mu   sync.Mutex
	path string
	seq  int64
	data map[string]map[string]*entry
	hub  *store.Hub
}

var _ store.Store = (*Store)(nil)

// New returns a store kept only in memory.
func New() *Store {
	return &Store{
		data: make(map[string]map[string]*entry),
		hub:  store.NewHub(),
	}
}

// Open returns a store persisted to path, loading any existing snapshot.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshotFile
	if err := cbor.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s.seq = snap.Seq
	for coll, entries := range snap.Collections {
		m := make(map[string]*entry, len(entries))
		for i := range entries {
			e := entries[i]
			m[e.ID] = &e
		}
		s.data[coll] = m
	}

	slog.Info("Loaded local store snapshot", "path", path, "collections", len(snap.Collections))
	return s, nil
}

func (s *Store) Read(ctx context.Context, collection, id string) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}
	doc := e.document()
	return &doc, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(collection), nil
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data[collection] == nil {
		s.data[collection] = make(map[string]*entry)
	}

	s.seq++
	e := &entry{ID: uuid.NewString(), Data: slices.Clone(data), Rev: 1, Seq: s.seq}
	s.data[collection][e.ID] = e

	if err := s.persistLocked(); err != nil {
		delete(s.data[collection], e.ID)
		return "", err
	}
	s.publishLocked(collection)
	return e.ID, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.replaceLocked(collection, id, data)
	return err
}

func (s *Store) WriteAtomic(ctx context.Context, collection, id string, fn store.Mutator) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}

	next, err := fn(slices.Clone(e.Data))
	if err != nil {
		return nil, err
	}
	return s.replaceLocked(collection, id, next)
}

func (s *Store) replaceLocked(collection, id string, data []byte) (*store.Document, error) {
	e, ok := s.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}

	prev := *e
	e.Data = slices.Clone(data)
	e.Rev++

	if err := s.persistLocked(); err != nil {
		*e = prev
		return nil, err
	}
	s.publishLocked(collection)

	doc := e.document()
	return &doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}
	delete(s.data[collection], id)

	if err := s.persistLocked(); err != nil {
		s.data[collection][id] = e
		return err
	}
	s.publishLocked(collection)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan []store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.Subscribe(ctx, collection, s.listLocked(collection)), nil
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) listLocked(collection string) []store.Document {
	entries := make([]*entry, 0, len(s.data[collection]))
	for _, e := range s.data[collection] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	docs := make([]store.Document, len(entries))
	for i, e := range entries {
		docs[i] = e.document()
	}
	return docs
}

func (s *Store) publishLocked(collection string) {
	s.hub.Publish(collection, s.listLocked(collection))
}

// persistLocked rewrites the snapshot file through a temp file and rename so
// a crash never leaves a torn snapshot behind.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	snap := snapshotFile{Seq: s.seq, Collections: make(map[string][]entry, len(s.data))}
	for coll, m := range s.data {
		entries := make([]entry, 0, len(m))
		for _, e := range m {
			entries = append(entries, *e)
		}
		snap.Collections[coll] = entries
	}

	raw, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (e *entry) document() store.Document {
	return store.Document{ID: e.ID, Data: slices.Clone(e.Data), Rev: e.Rev}
}
