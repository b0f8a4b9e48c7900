package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"

	"github.com/DrSkyle/wastewatch/pkg/storage"
)

// BlobBackend keeps the ledger as one JSON lines object in a BlobStore,
// typically S3. Appends read, modify and rewrite the whole object.
type BlobBackend struct {
	Store storage.BlobStore
	Key   string
	// Context is used for store calls; Background when nil.
	Context context.Context
}

func (b *BlobBackend) ctx() context.Context {
	if b.Context == nil {
		return context.Background()
	}
	return b.Context
}

func (b *BlobBackend) Append(s Snapshot) error {
	existing, err := b.readAll()
	if err != nil {
		// missing object starts a new ledger
		existing = nil
	}
	existing = append(existing, s)

	var buf bytes.Buffer
	for _, snap := range existing {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return b.Store.Put(b.ctx(), b.Key, buf.Bytes())
}

func (b *BlobBackend) Load(n int) ([]Snapshot, error) {
	history, err := b.readAll()
	if err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

func (b *BlobBackend) readAll() ([]Snapshot, error) {
	data, err := b.Store.Get(b.ctx(), b.Key)
	if err != nil {
		return nil, err
	}
	var history []Snapshot
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var s Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		history = append(history, s)
	}
	return history, scanner.Err()
}
