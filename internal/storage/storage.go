package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnsupportedType is returned for an unknown storage type.
var ErrUnsupportedType = errors.New("unsupported storage type")

// Storage is a blob backend addressed by relative object paths.
type Storage interface {
	// Save stores the reader's content at path.
	Save(ctx context.Context, path string, reader io.Reader, contentType string) error

	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)

	// GetURL returns the public URL for path.
	GetURL(path string) string

	// PathFromURL reverses GetURL. ok is false for URLs this backend did not produce.
	PathFromURL(url string) (path string, ok bool)
}

// Config holds storage configuration
type Config struct {
	Type        string // local, s3, cloudflare_r2, supabase
	BasePath    string // local
	BaseURL     string // public URL base
	Bucket      string // s3, cloudflare_r2, supabase
	Region      string // s3
	AccessKey   string // s3, cloudflare_r2
	SecretKey   string // s3, cloudflare_r2
	Endpoint    string // cloudflare_r2 or custom S3
	PublicRead  bool
	SupabaseURL string
	SupabaseKey string
}

// NewStorage picks the backend for cfg.Type. An empty type means no storage is
// configured and returns (nil, nil).
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "local":
		return NewLocalStorage(cfg)
	case "s3":
		return NewS3Storage(cfg)
	case "cloudflare_r2":
		return NewCloudflareR2Storage(cfg)
	case "supabase":
		return NewSupabaseStorage(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// trimPrefixPath strips base and the joining slash from url.
func trimPrefixPath(url, base string) (string, bool) {
	base = strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return "", false
	}
	path := strings.TrimPrefix(url, base)
	return path, path != ""
}
