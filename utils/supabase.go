package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	storage "github.com/supabase-community/storage-go"
)

// SupabaseStore uploads objects into one Supabase Storage bucket.
type SupabaseStore struct {
	client  *storage.Client
	baseURL string
	bucket  string
}

func NewSupabaseStore(baseURL, key, bucket string) (*SupabaseStore, error) {
	if baseURL == "" || key == "" {
		return nil, errors.New("supabase: SUPABASE_URL and SUPABASE_KEY are required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &SupabaseStore{
		client:  storage.NewClient(baseURL+"/storage/v1", key, nil),
		baseURL: baseURL,
		bucket:  bucket,
	}, nil
}

// Put uploads body under key and returns its public URL:
// <url>/storage/v1/object/public/<bucket>/<key>
func (s *SupabaseStore) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	upsert := false
	opts := storage.FileOptions{ContentType: &contentType, Upsert: &upsert}
	if _, err := s.client.UploadFile(s.bucket, key, body, opts); err != nil {
		return "", fmt.Errorf("supabase upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key), nil
}

func (s *SupabaseStore) Delete(_ context.Context, key string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("supabase delete %s: %w", key, err)
	}
	return nil
}
