package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStorage stores objects in a Supabase Storage bucket.
type SupabaseStorage struct {
	client  *storage_go.Client
	bucket  string
	baseURL string
}

func NewSupabaseStorage(cfg Config) (*SupabaseStorage, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("supabase url and key are required for supabase storage")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for supabase storage")
	}

	base := strings.TrimRight(cfg.SupabaseURL, "/")
	client := storage_go.NewClient(base+"/storage/v1", cfg.SupabaseKey, nil)

	return &SupabaseStorage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s/storage/v1/object/public/%s", base, cfg.Bucket),
	}, nil
}

func (s *SupabaseStorage) Save(ctx context.Context, path string, reader io.Reader, contentType string) error {
	upsert := false
	_, err := s.client.UploadFile(s.bucket, path, reader, storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, path string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{path}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *SupabaseStorage) Exists(ctx context.Context, path string) (bool, error) {
	dir, name := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, name = path[:i], path[i+1:]
	}
	files, err := s.client.ListFiles(s.bucket, dir, storage_go.FileSearchOptions{
		Limit: 1000,
	})
	if err != nil {
		return false, fmt.Errorf("failed to list files: %w", err)
	}
	for _, f := range files {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *SupabaseStorage) GetURL(path string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, path)
}

func (s *SupabaseStorage) PathFromURL(url string) (string, bool) {
	return trimPrefixPath(url, s.baseURL)
}
