// Package fs implements the blob Store on a local directory.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wastelink/internal/blob/core"
)

// Store implements core.Store using the local filesystem.
// Keys map to relative file paths under the root; a sidecar (filename +
// `.meta`) stores content type, user metadata and the content hash.
// Writes go to a temp file in the target directory and are renamed into place.
type Store struct {
	root string
	now  func() time.Time
}

// New returns a filesystem-backed blob store rooted at path, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Driver returns the filesystem driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// Root returns the directory the store writes under.
func (s *Store) Root() string { return s.root }

// sanitizeKey forbids empty keys, absolute paths and traversal outside root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key traversal %q", key)
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(k))
	metaPath = dataPath + ".meta"
	return
}

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Put streams r into key, replacing the previous contents atomically. The
// data is staged in a temp file and the sidecar is written before the data
// rename, so a crash never leaves a new data file without metadata.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	dir := filepath.Dir(dataPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.Info{}, err
	}
	h := sha256.New()
	var size int64
	staged, err := stageTemp(dir, func(w io.Writer) error {
		n, err := io.Copy(io.MultiWriter(w, h), r)
		size = n
		return err
	})
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(staged) }()

	now := s.now()
	created := now
	if prev, err := readMeta(metaPath); err == nil && !prev.CreatedAt.IsZero() {
		created = prev.CreatedAt
	}
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   created,
		UpdatedAt:   now,
	}
	b, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	err = writeAtomic(dir, metaPath, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
	if err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(staged, dataPath); err != nil {
		return core.Info{}, err
	}
	return infoFromMeta(key, mf), nil
}

// stageTemp fills a synced temp file in dir and returns its path.
func stageTemp(dir string, fill func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// writeAtomic fills a temp file via fill and renames it over target.
func writeAtomic(dir, target string, fill func(io.Writer) error) error {
	staged, err := stageTemp(dir, fill)
	if err != nil {
		return err
	}
	if err := os.Rename(staged, target); err != nil {
		_ = os.Remove(staged)
		return err
	}
	return nil
}

// Get opens the blob for reading; the caller closes the returned reader.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	info, err := s.describe(key, dataPath, metaPath, st)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return info, file, nil
}

// Head returns the blob metadata without opening the data file for the caller.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	st, err := os.Stat(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, err
	}
	return s.describe(key, dataPath, metaPath, st)
}

// describe reads the sidecar of an existing data file. The data file is
// authoritative: a missing sidecar, or one describing a different size,
// is rebuilt from the file itself.
func (s *Store) describe(key, dataPath, metaPath string, st iofs.FileInfo) (core.Info, error) {
	mf, err := readMeta(metaPath)
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		mf = metaFile{CreatedAt: st.ModTime().UTC(), UpdatedAt: st.ModTime().UTC()}
	case err != nil:
		return core.Info{}, fmt.Errorf("blob %s metadata: %w", key, err)
	case mf.Size == st.Size():
		return infoFromMeta(key, mf), nil
	default:
		mf.UpdatedAt = st.ModTime().UTC()
	}
	etag, err := hashFile(dataPath)
	if err != nil {
		return core.Info{}, err
	}
	mf.ETag = etag
	mf.Size = st.Size()
	return infoFromMeta(key, mf), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Delete removes the blob and its sidecar.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

func infoFromMeta(key string, mf metaFile) core.Info {
	return core.Info{
		Key:          key,
		Size:         mf.Size,
		ContentType:  mf.ContentType,
		ETag:         mf.ETag,
		Metadata:     cloneMetadata(mf.Metadata),
		LastModified: mf.UpdatedAt,
	}
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func readMeta(path string) (metaFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, err
	}
	return mf, nil
}
