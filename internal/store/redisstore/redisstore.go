// Package redisstore is the multi-client backend. Each document is a hash
// {data, rev}; collections keep a creation-ordered index in a sorted set and
// announce changes on a pub/sub channel. Read-modify-write goes through
// WATCH/MULTI so concurrent writers across processes never lose updates.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"blocktix/internal/status"
	"blocktix/internal/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Store struct {
	client      *redis.Client
	prefix      string
	maxAttempts int

	newID func() string
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

var _ store.Store = (*Store)(nil)

func New(client *redis.Client, prefix string, maxAttempts int) *Store {
	if prefix == "" {
		prefix = "blocktix"
	}
	return &Store{
		client:      client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		newID:       uuid.NewString,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (s *Store) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, collection, id)
}

func (s *Store) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s", s.prefix, collection)
}

func (s *Store) changesChannel(collection string) string {
	return fmt.Sprintf("%s:changes:%s", s.prefix, collection)
}

func (s *Store) Read(ctx context.Context, collection, id string) (*store.Document, error) {
	vals, err := s.client.HGetAll(ctx, s.docKey(collection, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return decode(collection, id, vals)
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Document, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return []store.Document{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.docKey(collection, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	docs := make([]store.Document, 0, len(ids))
	for i, cmd := range cmds {
		doc, err := decode(collection, ids[i], cmd.Val())
		if errors.Is(err, status.ErrNotFound) {
			// index entry outlived its document
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	id := s.newID()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docKey(collection, id), "data", string(data), "rev", 1)
		pipe.ZAdd(ctx, s.indexKey(collection), redis.Z{Score: float64(s.now().UnixMilli()), Member: id})
		pipe.Publish(ctx, s.changesChannel(collection), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, data []byte) error {
	_, err := s.WriteAtomic(ctx, collection, id, func([]byte) ([]byte, error) {
		return data, nil
	})
	return err
}

func (s *Store) WriteAtomic(ctx context.Context, collection, id string, fn store.Mutator) (*store.Document, error) {
	key := s.docKey(collection, id)

	var doc *store.Document
	err := store.RetryOnConflict(ctx, s.maxAttempts, func() error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			vals, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			current, err := decode(collection, id, vals)
			if err != nil {
				return err
			}

			next, err := fn(current.Data)
			if err != nil {
				return err
			}

			rev := current.Rev + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, "data", string(next), "rev", rev)
				pipe.Publish(ctx, s.changesChannel(collection), id)
				return nil
			})
			if err != nil {
				return err
			}

			doc = &store.Document{ID: id, Data: next, Rev: rev}
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			return status.ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.docKey(collection, id))
		pipe.ZRem(ctx, s.indexKey(collection), id)
		pipe.Publish(ctx, s.changesChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}
	return nil
}

// Subscribe listens on the collection's change channel and re-lists the whole
// collection after every notification.
func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan []store.Document, error) {
	pubsub := s.client.Subscribe(ctx, s.changesChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	initial, err := s.List(ctx, collection)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan []store.Document, 1)
	out <- initial

	go func() {
		defer pubsub.Close()
		s.relay(ctx, collection, pubsub.Channel(), out)
	}()

	return out, nil
}

// relay re-lists the collection for every change notification and keeps only
// the newest snapshot in out. It closes out when msgs closes, ctx ends or the
// store closes.
func (s *Store) relay(ctx context.Context, collection string, msgs <-chan *redis.Message, out chan []store.Document) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			snap, err := s.List(ctx, collection)
			if err != nil {
				slog.Error("Failed to refresh snapshot", "collection", collection, "error", err)
				continue
			}
			select {
			case <-out:
			default:
			}
			out <- snap
		}
	}
}

// Close stops active subscriptions. The redis client is owned by the caller.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func decode(collection, id string, vals map[string]string) (*store.Document, error) {
	data, ok := vals["data"]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, status.ErrNotFound)
	}
	rev, err := strconv.ParseInt(vals["rev"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: bad revision %q: %w", collection, id, vals["rev"], err)
	}
	return &store.Document{ID: id, Data: []byte(data), Rev: rev}, nil
}
