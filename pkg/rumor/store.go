package rumor

import (
	"bytes"
	"encoding/json"
	"sync/atomic"

	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const keySep = ":::"

func compositeKey(key string, id types.MemberId) []byte {
	return []byte(key + keySep + string(id))
}

// mergeFunc decides how an incoming rumor reconciles against the one
// already stored under the same (key, id).
type mergeFunc[T any] func(existing, incoming T) types.MergeResult[T]

// keyFunc and idFunc extract the (key, id) pair a rumor is stored under.
type keyFunc[T any] func(T) string
type idFunc[T any] func(T) types.MemberId

// Store is a per-rumor-type table plus an atomic update counter. It
// implements the RumorStore<T> contract from the data model.
type Store[T any] struct {
	db      *bolt.DB
	bucket  []byte
	merge   mergeFunc[T]
	key     keyFunc[T]
	id      idFunc[T]
	counter uint64
}

func newStore[T any](d *Database, bucket []byte, merge mergeFunc[T], key keyFunc[T], id idFunc[T]) *Store[T] {
	return &Store[T]{db: d.db, bucket: bucket, merge: merge, key: key, id: id}
}

// Insert applies merge against any existing entry under (key(rumor),
// id(rumor)). Returns true iff the update counter was bumped.
func (s *Store[T]) Insert(incoming T) bool {
	dbKey := compositeKey(s.key(incoming), s.id(incoming))
	bumped := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		raw := b.Get(dbKey)

		var result types.MergeResult[T]
		if raw == nil {
			result = types.ShareNewResult(incoming)
		} else {
			var existing T
			if err := json.Unmarshal(raw, &existing); err != nil {
				log.WithComponent("rumor").Warn().Err(err).Msg("corrupt rumor record, treating incoming as new")
				result = types.ShareNewResult(incoming)
			} else {
				result = s.merge(existing, incoming)
			}
		}

		switch result.Outcome {
		case types.ShareNew:
			encoded, err := json.Marshal(result.Value)
			if err != nil {
				return err
			}
			if err := b.Put(dbKey, encoded); err != nil {
				return err
			}
			bumped = true
		case types.ShareExisting:
			bumped = true
		case types.StopSharing:
			// no-op
		}
		return nil
	})
	if err != nil {
		log.WithComponent("rumor").Error().Err(err).Msg("insert failed, transaction aborted")
		return false
	}
	if bumped {
		atomic.AddUint64(&s.counter, 1)
	}
	return bumped
}

// Remove unconditionally deletes the entry under (key, id).
func (s *Store[T]) Remove(key string, id types.MemberId) {
	dbKey := compositeKey(key, id)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(dbKey)
	})
	if err != nil {
		log.WithComponent("rumor").Error().Err(err).Msg("remove failed")
	}
}

// Contains reports whether an entry exists under (key, id).
func (s *Store[T]) Contains(key string, id types.MemberId) bool {
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(s.bucket).Get(compositeKey(key, id)) != nil
		return nil
	})
	return found
}

// WithRumor invokes fn with the rumor stored under (key, id), if any,
// and reports whether one was found.
func (s *Store[T]) WithRumor(key string, id types.MemberId, fn func(T)) bool {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get(compositeKey(key, id))
		if raw == nil {
			return nil
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		found = true
		fn(v)
		return nil
	})
	if err != nil {
		log.WithComponent("rumor").Warn().Err(err).Msg("with_rumor read failed, treated as not found")
		return false
	}
	return found
}

// WithRumors invokes fn once per rumor stored under the given key
// prefix, relying on bolt's sorted key order so all rumors for one
// service group are visited contiguously.
func (s *Store[T]) WithRumors(key string, fn func(T)) {
	prefix := []byte(key + keySep)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				log.WithComponent("rumor").Warn().Err(err).Msg("skipping corrupt rumor record")
				continue
			}
			fn(v)
		}
		return nil
	})
	if err != nil {
		log.WithComponent("rumor").Warn().Err(err).Msg("with_rumors read failed")
	}
}

// WithAllRumors invokes fn once per rumor in the store.
func (s *Store[T]) WithAllRumors(fn func(T)) {
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(_, raw []byte) error {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				log.WithComponent("rumor").Warn().Err(err).Msg("skipping corrupt rumor record")
				return nil
			}
			fn(v)
			return nil
		})
	})
	if err != nil {
		log.WithComponent("rumor").Warn().Err(err).Msg("with_all_rumors read failed")
	}
}

// Encode serializes a single rumor for the anti-entropy sender. Because
// the stored bytes are produced by a deterministic json.Marshal of a
// fixed Go struct, re-encoding an unchanged rumor always reproduces the
// same bytes, satisfying the wire requirement that anti-entropy
// re-sends be byte-identical.
func (s *Store[T]) Encode(key string, id types.MemberId) ([]byte, bool) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get(compositeKey(key, id))
		if raw == nil {
			return nil
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		log.WithComponent("rumor").Warn().Err(err).Msg("encode read failed")
		return nil, false
	}
	return out, out != nil
}

// GetUpdateCounter returns the current update counter. Only inequality
// between successive reads matters to callers (the census ring, the
// gossip engine); wraparound on overflow is acceptable.
func (s *Store[T]) GetUpdateCounter() uint64 {
	return atomic.LoadUint64(&s.counter)
}

// Clear removes every rumor and resets the counter, returning the prior
// counter value.
func (s *Store[T]) Clear() uint64 {
	prior := atomic.SwapUint64(&s.counter, 0)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		log.WithComponent("rumor").Error().Err(err).Msg("clear failed")
	}
	return prior
}
