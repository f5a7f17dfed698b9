package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wastelink/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func readAll(t *testing.T, store *Store, key string) (core.Info, string) {
	t.Helper()
	info, rc, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return info, string(b)
}

func TestStorePutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "snapshots/wastelink.json", strings.NewReader("hello"), core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"version": "1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "snapshots/wastelink.json" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "snapshots/wastelink.json")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, body := readAll(t, store, "snapshots/wastelink.json")
	if body != "hello" || got.ETag != head.ETag || got.Metadata["version"] != "1" {
		t.Fatalf("unexpected get artifacts %+v %q", got, body)
	}
	ok, err := store.Delete(ctx, "snapshots/wastelink.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "snapshots/wastelink.json")
	if err != nil || ok {
		t.Fatalf("second delete should be false: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "snapshots/wastelink.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestStorePutOverwritesAndKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return first }
	if _, err := store.Put(ctx, "state.json", strings.NewReader(`{"v":1}`), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.now = func() time.Time { return first.Add(time.Hour) }
	info, err := store.Put(ctx, "state.json", strings.NewReader(`{"v":22}`), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if !info.LastModified.Equal(first.Add(time.Hour)) {
		t.Fatalf("expected updated timestamp, got %v", info.LastModified)
	}
	_, body := readAll(t, store, "state.json")
	if body != `{"v":22}` {
		t.Fatalf("expected overwritten body, got %q", body)
	}
	mf, err := readMeta(filepath.Join(store.Root(), "state.json.meta"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if !mf.CreatedAt.Equal(first) {
		t.Fatalf("expected created_at to survive overwrite, got %v", mf.CreatedAt)
	}
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for i := 0; i < 3; i++ {
		if _, err := store.Put(ctx, "state.json", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Fatalf("expected data and meta files only, got %d entries", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStoreFailedPutKeepsPreviousBlob(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "state.json", strings.NewReader("old"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "state.json", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read failure")
	}
	_, body := readAll(t, store, "state.json")
	if body != "old" {
		t.Fatalf("expected previous contents, got %q", body)
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "   ", "/abs.json", "../escape.json", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
		if _, _, err := store.Get(ctx, key); err == nil || errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected key error for %q, got %v", key, err)
		}
	}
}

func TestStoreCorruptMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "state.json", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "state.json.meta"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt meta: %v", err)
	}
	if _, err := store.Head(ctx, "state.json"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected metadata decode error, got %v", err)
	}
}

func TestStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "state.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestStoreDataWithoutSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	put, err := store.Put(ctx, "state.json", strings.NewReader(`{"v":1}`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.Remove(filepath.Join(store.Root(), "state.json.meta")); err != nil {
		t.Fatalf("remove meta: %v", err)
	}

	head, err := store.Head(ctx, "state.json")
	if err != nil {
		t.Fatalf("head without sidecar: %v", err)
	}
	if head.Size != put.Size || head.ETag != put.ETag || head.LastModified.IsZero() {
		t.Fatalf("expected info rebuilt from the data file, got %+v want %+v", head, put)
	}
	info, body := readAll(t, store, "state.json")
	if body != `{"v":1}` || info.ETag != put.ETag {
		t.Fatalf("unexpected get without sidecar %+v %q", info, body)
	}
}

func TestStoreSidecarForOlderData(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "state.json", strings.NewReader("old"), core.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "state.json"), []byte("restored!"), 0o644); err != nil {
		t.Fatalf("replace data: %v", err)
	}
	info, body := readAll(t, store, "state.json")
	if body != "restored!" || info.Size != int64(len("restored!")) || info.ContentType != "text/plain" {
		t.Fatalf("expected size and hash of the data file, got %+v %q", info, body)
	}
	fresh, err := store.Put(ctx, "check.json", strings.NewReader("restored!"), core.PutOptions{})
	if err != nil {
		t.Fatalf("put check: %v", err)
	}
	if info.ETag != fresh.ETag {
		t.Fatalf("etag must be the content hash, got %s want %s", info.ETag, fresh.ETag)
	}
}
