package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"blocktix/internal/status"
	"blocktix/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateReadUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	id, err := s.Create(ctx, store.Events, []byte(`{"n":1}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(doc.Data))
	assert.Equal(t, int64(1), doc.Rev)

	require.NoError(t, s.Update(ctx, store.Events, id, []byte(`{"n":2}`)))
	doc, err = s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(doc.Data))
	assert.Equal(t, int64(2), doc.Rev)

	require.NoError(t, s.Delete(ctx, store.Events, id))
	_, err = s.Read(ctx, store.Events, id)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestStore_UnknownIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.ErrorIs(t, s.Update(ctx, store.Events, "missing", nil), status.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, store.Events, "missing"), status.ErrNotFound)

	_, err := s.WriteAtomic(ctx, store.Events, "missing", func(b []byte) ([]byte, error) { return b, nil })
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestStore_WriteAtomicMutatorErrorLeavesDocument(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, store.Events, []byte("1"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.WriteAtomic(ctx, store.Events, id, func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.Equal(t, "1", string(doc.Data))
	assert.Equal(t, int64(1), doc.Rev)
}

func TestStore_WriteAtomicSerializesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, store.Events, []byte("0"))
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.WriteAtomic(ctx, store.Events, id, func(cur []byte) ([]byte, error) {
				n, err := strconv.Atoi(string(cur))
				if err != nil {
					return nil, err
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Read(ctx, store.Events, id)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(writers), string(doc.Data))
	assert.Equal(t, int64(writers+1), doc.Rev)
}

func TestStore_ListKeepsCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Create(ctx, store.Tickets, []byte(strconv.Itoa(i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	docs, err := s.List(ctx, store.Tickets)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for i, doc := range docs {
		assert.Equal(t, ids[i], doc.ID)
	}
}

func TestStore_SubscribeSeesChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	ch, err := s.Subscribe(ctx, store.Events)
	require.NoError(t, err)
	assert.Empty(t, <-ch)

	id, err := s.Create(ctx, store.Events, []byte("{}"))
	require.NoError(t, err)

	select {
	case snap := <-ch:
		require.Len(t, snap, 1)
		assert.Equal(t, id, snap[0].ID)
	case <-time.After(time.Second):
		t.Fatal("no snapshot after create")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.cbor")

	s, err := Open(path)
	require.NoError(t, err)

	first, err := s.Create(ctx, store.Events, []byte(`{"name":"a"}`))
	require.NoError(t, err)
	second, err := s.Create(ctx, store.Events, []byte(`{"name":"b"}`))
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, store.Events, first, []byte(`{"name":"a2"}`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)

	docs, err := reopened.List(ctx, store.Events)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, first, docs[0].ID)
	assert.JSONEq(t, `{"name":"a2"}`, string(docs[0].Data))
	assert.Equal(t, int64(2), docs[0].Rev)
	assert.Equal(t, second, docs[1].ID)

	third, err := reopened.Create(ctx, store.Events, []byte(`{}`))
	require.NoError(t, err)
	docs, err = reopened.List(ctx, store.Events)
	require.NoError(t, err)
	assert.Equal(t, third, docs[2].ID)
}

func TestOpen_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	require.NoError(t, writeFile(path, []byte{0xff, 0xff, 0xff}))

	_, err := Open(path)
	assert.Error(t, err)
}

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o600)
}
