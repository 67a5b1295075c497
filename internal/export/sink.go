package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"budgetsync/internal/core"
)

// Sink receives an export of one user's data.
type Sink interface {
	Name() string
	Export(ctx context.Context, uid string, d core.LocalData) error
}

// FileSink writes the rendered export into a directory.
type FileSink struct {
	dir    string
	format Format
	now    func() time.Time
}

func NewFileSink(dir string, format Format) *FileSink {
	return &FileSink{dir: dir, format: format, now: time.Now}
}

func (s *FileSink) Name() string { return "file" }

// Path is where the next export will be written.
func (s *FileSink) Path() string {
	return filepath.Join(s.dir, s.format.FileName(s.now()))
}

func (s *FileSink) Export(_ context.Context, _ string, d core.LocalData) error {
	body, err := Render(s.format, d, s.now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(s.Path(), body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
