package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnavailable          = errors.New("blob storage is not configured")
	ErrFileTooLarge         = errors.New("file exceeds the size limit")
	ErrUnsupportedMediaType = errors.New("file type is not allowed")
	ErrForeignURL           = errors.New("url does not belong to the configured storage")
)

// FileInput is an upload as received from the client.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// StoredFile describes a saved upload.
type StoredFile struct {
	URL       string
	FileName  string
	SizeBytes int64
	MimeType  string
}

// BlobStore stores deliverable files and removes them by URL.
type BlobStore interface {
	Store(ctx context.Context, dir string, file FileInput) (*StoredFile, error)
	Delete(ctx context.Context, url string) error
}

type blobStore struct {
	backend      Storage
	maxSize      int64
	allowedTypes []string
}

// NewBlobStore wraps backend. A nil backend yields ErrUnavailable on every call.
func NewBlobStore(backend Storage, maxSize int64, allowedTypes []string) BlobStore {
	return &blobStore{
		backend:      backend,
		maxSize:      maxSize,
		allowedTypes: allowedTypes,
	}
}

func (b *blobStore) Store(ctx context.Context, dir string, file FileInput) (*StoredFile, error) {
	if b.backend == nil {
		return nil, ErrUnavailable
	}
	if b.maxSize > 0 && file.Size > b.maxSize {
		return nil, ErrFileTooLarge
	}
	if !b.allowed(file.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, file.ContentType)
	}

	name := filepath.Base(file.Name)
	path := fmt.Sprintf("%s/%s%s", strings.Trim(dir, "/"), uuid.NewString(), strings.ToLower(filepath.Ext(name)))

	counter := &countingReader{r: file.Reader, limit: b.maxSize}
	if err := b.backend.Save(ctx, path, counter, file.ContentType); err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			_ = b.backend.Delete(ctx, path)
			return nil, ErrFileTooLarge
		}
		return nil, err
	}

	return &StoredFile{
		URL:       b.backend.GetURL(path),
		FileName:  name,
		SizeBytes: counter.n,
		MimeType:  file.ContentType,
	}, nil
}

func (b *blobStore) Delete(ctx context.Context, url string) error {
	if b.backend == nil {
		return ErrUnavailable
	}
	path, ok := b.backend.PathFromURL(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	return b.backend.Delete(ctx, path)
}

func (b *blobStore) allowed(contentType string) bool {
	if len(b.allowedTypes) == 0 {
		return true
	}
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, t := range b.allowedTypes {
		if strings.EqualFold(t, ct) {
			return true
		}
	}
	return false
}

// countingReader measures the bytes actually written and stops past limit.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}
