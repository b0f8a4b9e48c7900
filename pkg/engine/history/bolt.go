package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var bucketScans = []byte("scans")

// BoltBackend stores snapshots in a bbolt database keyed by time, so Load
// reads the newest entries with a reverse cursor.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the ledger database in dir.
func OpenBolt(dir string) (*BoltBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, "history.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScans)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// snapshotKey orders by timestamp, then scan id.
func snapshotKey(s Snapshot) []byte {
	key := make([]byte, 8, 8+len(s.ScanID))
	binary.BigEndian.PutUint64(key, uint64(s.Timestamp))
	return append(key, s.ScanID...)
}

func (b *BoltBackend) Append(s Snapshot) error {
	value, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScans).Put(snapshotKey(s), value)
	})
}

func (b *BoltBackend) Load(n int) ([]Snapshot, error) {
	var out []Snapshot
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketScans).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(out) < n); k, v = c.Prev() {
			var s Snapshot
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("corrupt history entry %x: %w", k, err)
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
