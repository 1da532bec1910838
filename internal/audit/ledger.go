// Package audit implements Stasis's append-only action ledger: a BoltDB-
// backed log of every action the engine fires, kept for the IPC `history`
// command. It is write-only from the supervisor's point of view — nothing
// in the daemon ever reads the ledger back into engine.State, so losing it
// or starting with an empty one changes no runtime behavior.
package audit

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is a system-wide ledger file location. cmd/stasis does
	// not use it; the daemon opens its ledger under the XDG state directory.
	DefaultDBPath = "/var/lib/stasis/ledger.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 14

	bucketLedger = "ledger"
	bucketMeta   = "meta"
)

// Entry is a single fired-action record.
type Entry struct {
	Time   time.Time `json:"time"`
	Event  string    `json:"event"`
	Action string    `json:"action"`
	Step   int       `json:"step"`
}

// Ledger wraps a BoltDB instance holding fired-action entries.
type Ledger struct {
	db            *bolt.DB
	retentionDays int
	seq           atomic.Uint64
}

// Open opens (or creates) the ledger database at path.
func Open(path string, retentionDays int) (*Ledger, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	l := &Ledger{db: bdb, retentionDays: retentionDays}

	if err := l.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketLedger, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("ledger initialisation failed: %w", err)
	}

	if err := l.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) checkSchemaVersion() error {
	return l.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("ledger schema version mismatch: database has %q, daemon requires %q",
				string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying database file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// ledgerKey builds a lexicographically sortable key: a fixed-width RFC 3339
// UTC timestamp with nanoseconds plus a zero-padded monotonic sequence
// number, so two entries recorded within the same clock tick still sort in
// append order.
func ledgerKey(t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s_%020d", t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), seq))
}

// Append records a fired action. Satisfies supervisor.Ledger.
func (l *Ledger) Append(eventKind, action string, stepIndex int) error {
	entry := Entry{Time: time.Now().UTC(), Event: eventKind, Action: action, Step: stepIndex}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit.Append marshal: %w", err)
	}
	key := ledgerKey(entry.Time, l.seq.Add(1))

	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("audit.Append bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOld deletes entries older than the ledger's retention window.
// Returns the number of entries deleted.
func (l *Ledger) PruneOld() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	cutoffKey := ledgerKey(cutoff, 0)

	var deleted int
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("audit.PruneOld delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadRecent returns up to n of the most recent entries, oldest first. n<=0
// means no limit.
func (l *Ledger) ReadRecent(n int) ([]Entry, error) {
	var all []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		return b.ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			all = append(all, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
