// Package pbstore keeps documents in pocketbase collections. Each record holds
// the encoded document in a json "data" field next to an integer "rev" that
// guards optimistic writes.
package pbstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"blocktix/internal/status"
	"blocktix/internal/store"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

var collections = []string{store.Events, store.Tickets}

// EnsureCollections creates the document collections that do not exist yet.
func EnsureCollections(app core.App) error {
	for _, name := range collections {
		if _, err := app.FindCollectionByNameOrId(name); err == nil {
			continue
		}

		collection := core.NewBaseCollection(name)
		collection.ListRule = types.Pointer("")
		collection.ViewRule = types.Pointer("")
		collection.Fields.Add(
			&core.JSONField{Name: "data"},
			&core.NumberField{Name: "rev", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		if err := app.Save(collection); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		slog.Info("Created collection", "collection", name)
	}
	return nil
}

// DropCollections removes the document collections. Used by the down migration.
func DropCollections(app core.App) error {
	for _, name := range collections {
		collection, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", name, err)
		}
	}
	return nil
}

type Store struct {
	app         core.App
	maxAttempts int
	hub         *store.Hub

	changed map[string]chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// New binds record hooks on app so that every committed change to a document
// collection is pushed to subscribers as a fresh snapshot.
func New(app core.App, maxAttempts int) *Store {
	s := &Store{
		app:         app,
		maxAttempts: maxAttempts,
		hub:         store.NewHub(),
		changed:     make(map[string]chan struct{}, len(collections)),
		done:        make(chan struct{}),
	}

	for _, name := range collections {
		s.changed[name] = make(chan struct{}, 1)
		s.wg.Add(1)
		go s.pump(name)
	}

	notify := func(e *core.RecordEvent) error {
		s.signal(e.Record.Collection().Name)
		return e.Next()
	}
	app.OnRecordAfterCreateSuccess(collections...).BindFunc(notify)
	app.OnRecordAfterUpdateSuccess(collections...).BindFunc(notify)
	app.OnRecordAfterDeleteSuccess(collections...).BindFunc(notify)

	return s
}

func (s *Store) signal(collection string) {
	ch, ok := s.changed[collection]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// pump coalesces change signals and publishes one snapshot per burst.
func (s *Store) pump(collection string) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case <-s.changed[collection]:
			if s.hub.Subscribers(collection) == 0 {
				continue
			}
			docs, err := s.List(context.Background(), collection)
			if err != nil {
				slog.Error("Failed to load snapshot", "collection", collection, "error", err)
				continue
			}
			s.hub.Publish(collection, docs)
		}
	}
}

func (s *Store) Read(ctx context.Context, collection, id string) (*store.Document, error) {
	record, err := s.find(s.app, collection, id)
	if err != nil {
		return nil, err
	}
	doc := toDocument(record)
	return &doc, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	records, err := s.app.FindRecordsByFilter(collection, "", "created,id", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]store.Document, len(records))
	for i, r := range records {
		docs[i] = toDocument(r)
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	coll, err := s.app.FindCachedCollectionByNameOrId(collection)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}

	record := core.NewRecord(coll)
	record.Set("data", types.JSONRaw(data))
	record.Set("rev", 1)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return record.Id, nil
}

// Update replaces the document through WriteAtomic so the new revision is
// never shared with a concurrent writer.
func (s *Store) Update(ctx context.Context, collection, id string, data []byte) error {
	_, err := s.WriteAtomic(ctx, collection, id, func([]byte) ([]byte, error) {
		return data, nil
	})
	return err
}

// WriteAtomic reads outside any transaction, runs fn, then commits only if
// the revision is still the one fn saw.
func (s *Store) WriteAtomic(ctx context.Context, collection, id string, fn store.Mutator) (*store.Document, error) {
	var doc store.Document

	err := store.RetryOnConflict(ctx, s.maxAttempts, func() error {
		record, err := s.find(s.app, collection, id)
		if err != nil {
			return err
		}
		seen := record.GetInt("rev")

		next, err := fn(recordData(record))
		if err != nil {
			return err
		}

		return s.app.RunInTransaction(func(txApp core.App) error {
			fresh, err := s.find(txApp, collection, id)
			if err != nil {
				return err
			}
			if fresh.GetInt("rev") != seen {
				return status.ErrConflict
			}

			fresh.Set("data", types.JSONRaw(next))
			fresh.Set("rev", seen+1)
			if err := txApp.SaveWithContext(ctx, fresh); err != nil {
				return fmt.Errorf("write %s/%s: %w", collection, id, err)
			}

			doc = store.Document{ID: id, Data: slices.Clone(next), Rev: int64(seen + 1)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	record, err := s.find(s.app, collection, id)
	if err != nil {
		return err
	}
	if err := s.app.DeleteWithContext(ctx, record); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan []store.Document, error) {
	if _, ok := s.changed[collection]; !ok {
		return nil, fmt.Errorf("subscribe %s: unknown collection", collection)
	}

	initial, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	ch := s.hub.Subscribe(ctx, collection, initial)

	// covers writes that landed between the list and the registration
	s.signal(collection)
	return ch, nil
}

func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.hub.Close()
	})
	return nil
}

func (s *Store) find(app core.App, collection, id string) (*core.Record, error) {
	record, err := app.FindRecordById(collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return record, nil
}

func toDocument(r *core.Record) store.Document {
	return store.Document{ID: r.Id, Data: recordData(r), Rev: int64(r.GetInt("rev"))}
}

func recordData(r *core.Record) []byte {
	if raw, ok := r.Get("data").(types.JSONRaw); ok {
		return slices.Clone([]byte(raw))
	}
	b, _ := json.Marshal(r.Get("data"))
	return b
}
