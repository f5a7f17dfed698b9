// Package blobsnap stores memory snapshots as a single JSON document in a
// blob store (local file or S3 object).
package blobsnap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"wastelink/internal/blob"
	"wastelink/internal/infra/persistence/memory"
)

var _ memory.Persister = (*Persister)(nil)

// DefaultKey is the object key used when none is configured.
const DefaultKey = "wastelink.json"

const (
	contentType     = "application/json"
	metadataVersion = "snapshot-version"
)

// Persister implements memory.Persister on top of a blob.Store.
type Persister struct {
	store blob.Store
	key   string
}

// New returns a persister writing snapshot documents to key in store.
func New(store blob.Store, key string) *Persister {
	if key == "" {
		key = DefaultKey
	}
	return &Persister{store: store, key: key}
}

// Key returns the object key the snapshot lives under.
func (p *Persister) Key() string { return p.key }

// Load fetches and decodes the snapshot. A missing object is not an error.
func (p *Persister) Load(ctx context.Context) (memory.Snapshot, bool, error) {
	_, rc, err := p.store.Get(ctx, p.key)
	if errors.Is(err, blob.ErrNotFound) {
		return memory.Snapshot{}, false, nil
	}
	if err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("read snapshot %s: %w", p.key, err)
	}
	defer func() { _ = rc.Close() }()
	var snapshot memory.Snapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return memory.Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", p.key, err)
	}
	if snapshot.Version > memory.SnapshotVersion {
		return memory.Snapshot{}, false, fmt.Errorf("snapshot version %d is newer than supported %d", snapshot.Version, memory.SnapshotVersion)
	}
	return snapshot, true, nil
}

// Save encodes snapshot and overwrites the stored document.
func (p *Persister) Save(ctx context.Context, snapshot memory.Snapshot) error {
	if snapshot.Version == 0 {
		snapshot.Version = memory.SnapshotVersion
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.store.Put(ctx, p.key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{metadataVersion: strconv.Itoa(snapshot.Version)},
	})
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", p.key, err)
	}
	return nil
}

// Close is a no-op; blob stores hold no long-lived handles.
func (p *Persister) Close() error { return nil }
