// Package store is the shard-local key/value layer (spec §4.B): a thin
// adapter over a single embedded, ordered, on-disk store per shard
// directory. It is deliberately narrow — get, batched put, ordered range
// scan, close — so that the index layer (pkg/index) and shard writer
// (pkg/shard) never need to know which embedded engine backs it.
//
// htraced uses go.etcd.io/bbolt the same way the orchestration daemon
// this codebase is descended from used it for cluster state
// (pkg/storage/boltdb.go in that lineage): a single bucket of
// lexicographically ordered byte-string keys, which is exactly the shape
// spec §4.D's prefix-family scheme needs.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/htrace/htraced/pkg/index"
)

var bucketName = []byte("spans")

// fileName is the on-disk file name of a shard's key/value store,
// sitting alongside SHARD_INFO in the shard directory.
const fileName = "data.db"

// lockWaitTimeout bounds how long Open waits for another process's
// exclusive file lock before failing with the documented error.
const lockWaitTimeout = 2 * time.Second

// ShardStore is one shard's embedded key/value store.
type ShardStore struct {
	db   *bolt.DB
	path string
}

// Open opens (creating if necessary) the store rooted at dir. Only one
// process may hold it open at a time; a second Open against the same
// directory fails with an error reporting the lock is already held.
func Open(dir string) (*ShardStore, error) {
	path := filepath.Join(dir, fileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockWaitTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("shard store %s: already held by process", dir)
		}
		return nil, fmt.Errorf("shard store %s: %w", dir, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("shard store %s: %w", dir, err)
	}
	return &ShardStore{db: db, path: path}, nil
}

// Close releases the store's file lock.
func (s *ShardStore) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or (nil, nil) if absent. The returned
// slice is a copy safe to retain past the call.
func (s *ShardStore) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

// PutBatch atomically writes every entry. An entry with Delete set
// removes its key instead; every other entry, including one with a nil
// or empty Value, is upserted.
func (s *ShardStore) PutBatch(entries []index.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, e := range entries {
			if e.Value == nil && isDeleteMarker(e) {
				if err := b.Delete(e.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// isDeleteMarker distinguishes "delete this key" from "store an empty
// value", both of which have Value == nil in Go's zero-value slice. Only
// the Entry's Delete flag marks a delete; index.DeletionsForSpan builds
// such markers.
func isDeleteMarker(e index.Entry) bool {
	return e.Delete
}

// RangeScan returns an Iterator over keys in [start, end) (end may be
// nil for "no upper bound"), ascending if !reverse, else descending over
// the same half-open interval. The caller must Close the iterator to
// release its underlying read transaction.
func (s *ShardStore) RangeScan(start, end []byte, reverse bool) (*Iterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	c := tx.Bucket(bucketName).Cursor()
	it := &Iterator{tx: tx, c: c, start: start, end: end, reverse: reverse, first: true}
	return it, nil
}

// Iterator walks a shard store's key space in one direction over a
// snapshot read transaction.
type Iterator struct {
	tx      *bolt.Tx
	c       *bolt.Cursor
	start   []byte
	end     []byte
	reverse bool
	first   bool
	key     []byte
	value   []byte
}

// Next advances the iterator and reports whether a new element is
// available at Key()/Value().
func (it *Iterator) Next() bool {
	var k, v []byte
	if it.first {
		it.first = false
		if it.reverse {
			k, v = it.seekLastBefore(it.end)
		} else {
			if it.start == nil {
				k, v = it.c.First()
			} else {
				k, v = it.c.Seek(it.start)
			}
		}
	} else if it.reverse {
		k, v = it.c.Prev()
	} else {
		k, v = it.c.Next()
	}

	if k == nil {
		it.key, it.value = nil, nil
		return false
	}
	if it.reverse {
		if it.start != nil && bytes.Compare(k, it.start) < 0 {
			it.key, it.value = nil, nil
			return false
		}
	} else {
		if it.end != nil && bytes.Compare(k, it.end) >= 0 {
			it.key, it.value = nil, nil
			return false
		}
	}
	it.key = append([]byte(nil), k...)
	it.value = append([]byte(nil), v...)
	return true
}

// seekLastBefore positions the cursor at the last key strictly less than
// end (or the last key in the store, if end is nil) and returns it.
func (it *Iterator) seekLastBefore(end []byte) ([]byte, []byte) {
	if end == nil {
		return it.c.Last()
	}
	k, v := it.c.Seek(end)
	if k == nil {
		return it.c.Last()
	}
	if bytes.Equal(k, end) {
		return it.c.Prev()
	}
	return it.c.Prev()
}

// Key returns the current element's key. Valid only after Next returns
// true.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current element's value.
func (it *Iterator) Value() []byte { return it.value }

// Close releases the iterator's read transaction.
func (it *Iterator) Close() error {
	return it.tx.Rollback()
}
