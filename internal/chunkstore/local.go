package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const localMetaFileName = "meta.json"

// LocalStore keeps each object as a directory of numbered chunk files plus a
// metadata file, under a single root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem chunk store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("chunk store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// PutChunk writes one chunk file via a temp file and rename.
func (s *LocalStore) PutChunk(ctx context.Context, objectID string, index int, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.objectDir(objectID)
	if err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("chunk index must be >= 0")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "chunk-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, chunkFileName(index))); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Finalize writes the object metadata file.
func (s *LocalStore) Finalize(ctx context.Context, info ObjectInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.objectDir(info.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "meta-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, localMetaFileName))
}

// Stat reads the object metadata file.
func (s *LocalStore) Stat(ctx context.Context, objectID string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.objectDir(objectID)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(filepath.Join(dir, localMetaFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	info := ObjectInfo{}
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("parse object metadata: %w", err)
	}
	return &info, nil
}

// ReadChunk reads one chunk file.
func (s *LocalStore) ReadChunk(ctx context.Context, objectID string, index int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.objectDir(objectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, chunkFileName(index)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrChunkNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the whole object directory. Missing objects are ignored.
func (s *LocalStore) Delete(ctx context.Context, objectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.objectDir(objectID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// ListObjectIDs lists object directories under the root.
func (s *LocalStore) ListObjectIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

func (s *LocalStore) objectDir(objectID string) (string, error) {
	objectID = strings.TrimSpace(objectID)
	if objectID == "" {
		return "", fmt.Errorf("object id is required")
	}
	clean := filepath.Clean(objectID)
	if clean != objectID || strings.ContainsAny(objectID, `/\`) || strings.HasPrefix(clean, ".") {
		return "", fmt.Errorf("invalid object id")
	}
	return filepath.Join(s.root, clean), nil
}

func chunkFileName(index int) string {
	return fmt.Sprintf("%06d.chunk", index)
}

var _ Store = (*LocalStore)(nil)
