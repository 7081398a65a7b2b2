package transcribe

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSStore uploads audio to a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

// Upload copies localPath to the bucket and returns its gs:// URI.
func (s *GCSStore) Upload(ctx context.Context, localPath, objectName string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "audio/flac"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", s.bucket, objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Delete removes an uploaded object.
func (s *GCSStore) Delete(ctx context.Context, objectName string) error {
	if err := s.client.Bucket(s.bucket).Object(objectName).Delete(ctx); err != nil {
		return fmt.Errorf("delete gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return nil
}
