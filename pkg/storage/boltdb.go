package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/log"
)

var (
	// Bucket names
	bucketPasses = []byte("passes")
	bucketEvents = []byte("events")
)

// BoltStore implements Store on bbolt. Keys are version 7 UUIDs so byte
// order is insertion order.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// NewBoltStore opens or creates the journal at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPasses, bucketEvents} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, logger: log.WithComponent("journal")}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func newKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// RecordPass stores rec, assigning an id when it has none
func (s *BoltStore) RecordPass(rec *PassRecord) error {
	if rec.ID == "" {
		id, err := newKey()
		if err != nil {
			return err
		}
		rec.ID = id
	}
	return s.put(bucketPasses, rec.ID, rec)
}

func (s *BoltStore) GetPass(id string) (*PassRecord, error) {
	var rec PassRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPasses).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("pass %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListPasses(limit int) ([]*PassRecord, error) {
	var out []*PassRecord
	err := s.newestFirst(bucketPasses, func(v []byte) (bool, error) {
		var rec PassRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return false, err
		}
		out = append(out, &rec)
		return limit > 0 && len(out) >= limit, nil
	})
	return out, err
}

// RecordEvent stores ev under a fresh time ordered key
func (s *BoltStore) RecordEvent(ev *events.Event) error {
	key, err := newKey()
	if err != nil {
		return err
	}
	return s.put(bucketEvents, key, ev)
}

func (s *BoltStore) ListEvents(limit int, appID string) ([]*events.Event, error) {
	var out []*events.Event
	err := s.newestFirst(bucketEvents, func(v []byte) (bool, error) {
		var ev events.Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return false, err
		}
		if appID != "" && ev.AppID != appID {
			return false, nil
		}
		out = append(out, &ev)
		return limit > 0 && len(out) >= limit, nil
	})
	return out, err
}

func (s *BoltStore) Prune(keep int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPasses, bucketEvents} {
			b := tx.Bucket(name)

			var keys [][]byte
			c := b.Cursor()
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				keys = append(keys, append([]byte(nil), k...))
			}
			if len(keys) <= keep {
				continue
			}
			for _, k := range keys[:len(keys)-keep] {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BoltStore) put(bucket []byte, key string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// newestFirst walks bucket from the last key back until fn reports done
func (s *BoltStore) newestFirst(bucket []byte, fn func(v []byte) (bool, error)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			done, err := fn(v)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
		return nil
	})
}

// Consume journals every event received on sub until the channel closes or
// ctx is done
func (s *BoltStore) Consume(ctx context.Context, sub events.Subscriber) {
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := s.RecordEvent(ev); err != nil {
				s.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to journal event")
			}
		case <-ctx.Done():
			return
		}
	}
}
