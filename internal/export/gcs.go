package export

import (
	"context"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"budgetsync/internal/core"
)

// GCSSink uploads exports to gs://bucket/<prefix>/<uid>/<file>.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
	format Format
	now    func() time.Time
}

// NewGCSSink uses Application Default Credentials.
func NewGCSSink(ctx context.Context, bucket, prefix string, format Format) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs sink: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix, format: format, now: time.Now}, nil
}

func (s *GCSSink) Name() string { return "gcs" }

func (s *GCSSink) objectName(uid string) string {
	return path.Join(s.prefix, uid, s.format.FileName(s.now()))
}

func (s *GCSSink) Export(ctx context.Context, uid string, d core.LocalData) error {
	body, err := Render(s.format, d, s.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.objectName(uid)).NewWriter(ctx)
	w.ContentType = s.format.ContentType()
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object: %w", err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}
