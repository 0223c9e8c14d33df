package storage

import (
	"context"
	"io"
	"mime"
	"path"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/fault"
)

var ErrBlobNotFound = fault.New(fault.NotFound, "blob not found")

// BlobStore keeps uploaded answer payloads. Put returns an opaque reference
// that Get accepts; callers never interpret it.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
}

// AnswerKey builds a unique key for one upload of one question in one attempt.
func AnswerKey(attemptID, questionID, contentType string) string {
	ext := ""
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join("attempts", attemptID, questionID, uuid.NewString()+ext)
}
