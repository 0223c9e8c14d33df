package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

// MountAssets serves uploaded answer blobs to graders.
func MountAssets(r chi.Router, bs storage.BlobStore) {
	// GET /assets/*   -> returns the blob whose ref follows /assets/
	r.With(rbac.Require(rbac.PermReadAssets)).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		ref := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		if ref == "" {
			badRequest(w, "ref required")
			return
		}
		rc, err := bs.Get(r.Context(), ref)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	})
}
