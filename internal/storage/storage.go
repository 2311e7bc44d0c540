// Package storage is the persistent blob store the pipeline reads uploads
// from and writes converted audio to.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Meta describes a file being stored.
type Meta struct {
	OriginalName string
	MimeType     string
}

// StoredFile is the handle returned by Put.
type StoredFile struct {
	Path     string
	Size     int64
	MimeType string
}

// Store is the blob storage contract the pipeline consumes.
type Store interface {
	GetBytes(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, localPath, orgID string, meta Meta) (StoredFile, error)
	Delete(ctx context.Context, path string) error
}

// DiskStore keeps blobs on the local filesystem under a root directory,
// one subdirectory per organization.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

func (d *DiskStore) GetBytes(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, path))
	if err != nil {
		return nil, fmt.Errorf("read stored file %q: %w", path, err)
	}
	return data, nil
}

func (d *DiskStore) Put(ctx context.Context, localPath, orgID string, meta Meta) (StoredFile, error) {
	relPath := filepath.Join(orgID, uuid.NewString()+filepath.Ext(meta.OriginalName))
	dest := filepath.Join(d.root, relPath)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create org dir: %w", err)
	}

	size, err := copyFile(localPath, dest)
	if err != nil {
		return StoredFile{}, fmt.Errorf("store %q: %w", localPath, err)
	}

	return StoredFile{Path: relPath, Size: size, MimeType: meta.MimeType}, nil
}

func (d *DiskStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(filepath.Join(d.root, path)); err != nil {
		return fmt.Errorf("delete stored file %q: %w", path, err)
	}
	return nil
}

func copyFile(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Close()
}
