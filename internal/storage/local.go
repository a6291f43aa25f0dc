package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LocalArchiver keeps answer photos under the upload directory, which the
// router serves at /uploads.
type LocalArchiver struct {
	dir        string
	normalizer Normalizer
	log        zerolog.Logger
}

// NewLocalArchiver creates a new LocalArchiver rooted at dir.
func NewLocalArchiver(dir string, normalizer Normalizer, log zerolog.Logger) *LocalArchiver {
	return &LocalArchiver{
		dir:        dir,
		normalizer: normalizer,
		log:        log.With().Str("component", "local_archiver").Logger(),
	}
}

// Store writes the photo to <dir>/archive/<folder>/<uuid><ext> and returns
// its relative URL.
func (a *LocalArchiver) Store(ctx context.Context, data []byte, mimeType, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, mimeType = normalizeOrKeep(a.normalizer, data, mimeType, a.log)

	rel := path.Join("archive", folder, uuid.New().String()+extensionFor(mimeType))
	destPath := filepath.Join(a.dir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return "/uploads/" + rel, nil
}

// normalizeOrKeep archives the original bytes when the photo cannot be
// re-encoded; grading has already seen the original.
func normalizeOrKeep(n Normalizer, data []byte, mimeType string, log zerolog.Logger) ([]byte, string) {
	out, outType, err := n.Normalize(data, mimeType)
	if err != nil {
		log.Warn().Err(err).Str("mime_type", mimeType).Msg("Photo normalization failed, archiving original")
		return data, mimeType
	}
	return out, outType
}
