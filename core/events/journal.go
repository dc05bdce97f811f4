package events

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"tradefin/core/types"
)

var bucketJournal = []byte("journal")

// JournalRecord is the persisted form of a single emitted event, ordered by a
// monotonically increasing sequence number.
type JournalRecord struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Journal persists emitted events to a BoltDB file so indexers can replay the
// stream after the fact. The journal is observability-only: a write failure is
// swallowed and never blocks the state transition that produced the event.
type Journal struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenJournal initialises (and migrates) the BoltDB-backed journal.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketJournal)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

type typedEvent interface {
	Event() *types.Event
}

// Emit appends the event to the journal. Implements the Emitter interface.
func (j *Journal) Emit(evt Event) {
	if j == nil || j.db == nil || evt == nil {
		return
	}
	record := JournalRecord{Type: evt.EventType(), RecordedAt: j.now().UTC()}
	if typed, ok := evt.(typedEvent); ok {
		if inner := typed.Event(); inner != nil {
			record.Attributes = inner.Attributes
		}
	}
	_ = j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketJournal)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		record.Sequence = seq
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, payload)
	})
}

// Replay invokes fn for every journaled event in sequence order, starting at
// the supplied sequence number (inclusive). Returning a non-nil error from fn
// stops the replay.
func (j *Journal) Replay(from uint64, fn func(JournalRecord) error) error {
	if j == nil || j.db == nil {
		return nil
	}
	start := make([]byte, 8)
	binary.BigEndian.PutUint64(start, from)
	return j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketJournal).Cursor()
		for k, v := cursor.Seek(start); k != nil; k, v = cursor.Next() {
			var record JournalRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	})
}
