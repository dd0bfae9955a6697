package pbstore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"blocktix/internal/status"
	"blocktix/internal/store"

	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	require.NoError(t, EnsureCollections(app))

	s := New(app, 50)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureCollections_Idempotent(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	require.NoError(t, EnsureCollections(app))
	require.NoError(t, EnsureCollections(app))

	for _, name := range []string{store.Events, store.Tickets} {
		coll, err := app.FindCollectionByNameOrId(name)
		require.NoError(t, err)
		assert.NotNil(t, coll.Fields.GetByName("data"))
		assert.NotNil(t, coll.Fields.GetByName("rev"))
	}

	require.NoError(t, DropCollections(app))
	_, err = app.FindCollectionByNameOrId(store.Events)
	assert.Error(t, err)
}

func TestStore_CreateReadUpdateDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Events, []byte(`{"name":"show"}`))
	require.NoError(t, err)

	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"show"}`, string(doc.Data))
	assert.Equal(t, int64(1), doc.Rev)

	require.NoError(t, s.Update(ctx, store.Events, id, []byte(`{"name":"renamed"}`)))
	doc, err = s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"renamed"}`, string(doc.Data))
	assert.Equal(t, int64(2), doc.Rev)

	require.NoError(t, s.Delete(ctx, store.Events, id))
	_, err = s.Read(ctx, store.Events, id)
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, store.Events, id), status.ErrNotFound)
}

func TestStore_WriteAtomicConcurrentIncrements(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Events, []byte(`{"count":0}`))
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.WriteAtomic(ctx, store.Events, id, func(cur []byte) ([]byte, error) {
				var v struct{ Count int }
				if err := json.Unmarshal(cur, &v); err != nil {
					return nil, err
				}
				v.Count++
				return json.Marshal(map[string]int{"count": v.Count})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":10}`, string(doc.Data))
	assert.Equal(t, int64(writers+1), doc.Rev)
}

func TestStore_UpdateLandingDuringWriteAtomicIsNotLost(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Events, []byte(`{"v":"initial"}`))
	require.NoError(t, err)

	calls := 0
	doc, err := s.WriteAtomic(ctx, store.Events, id, func(cur []byte) ([]byte, error) {
		calls++
		if calls == 1 {
			// organizer edit commits after this write read its state
			require.NoError(t, s.Update(ctx, store.Events, id, []byte(`{"v":"edit"}`)))
		}
		var v struct{ V string }
		if err := json.Unmarshal(cur, &v); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"v": v.V + "+reserve"})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.JSONEq(t, `{"v":"edit+reserve"}`, string(doc.Data))
	assert.Equal(t, int64(3), doc.Rev)

	stored, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"edit+reserve"}`, string(stored.Data))
	assert.Equal(t, int64(3), stored.Rev)
}

func TestStore_UpdateRacingWriteAtomicGetsUniqueRevisions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, store.Events, []byte(`{"count":0}`))
	require.NoError(t, err)

	const perKind = 8
	var wg sync.WaitGroup
	for i := 0; i < perKind; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Update(ctx, store.Events, id, []byte(`{"count":100}`)))
		}()
		go func() {
			defer wg.Done()
			_, err := s.WriteAtomic(ctx, store.Events, id, func(cur []byte) ([]byte, error) {
				var v struct{ Count int }
				if err := json.Unmarshal(cur, &v); err != nil {
					return nil, err
				}
				return json.Marshal(map[string]int{"count": v.Count + 1})
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// every write took its own revision, so none was silently overwritten
	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2*perKind+1), doc.Rev)
}

func TestStore_ListOrdersByCreation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		id, err := s.Create(ctx, store.Tickets, []byte(body))
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	docs, err := s.List(ctx, store.Tickets)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, doc := range docs {
		assert.Equal(t, ids[i], doc.ID)
	}
}

func TestStore_WriteAtomicNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.WriteAtomic(context.Background(), store.Tickets, "missing123456789", func(b []byte) ([]byte, error) {
		return b, nil
	})
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestStore_SubscribeReceivesSnapshots(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, store.Tickets)
	require.NoError(t, err)

	id, err := s.Create(ctx, store.Tickets, []byte(`{"owner":"0xa"}`))
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if len(snap) == 1 && snap[0].ID == id {
				return
			}
		case <-deadline:
			t.Fatal("snapshot with created ticket never arrived")
		}
	}
}

func TestStore_SubscribeUnknownCollection(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Subscribe(context.Background(), "unknown")
	assert.Error(t, err)
}
