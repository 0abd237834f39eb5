package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yegors/co-gcs/pkg/logger"
)

// StaticFileHandler serves the UI. Paths without a file extension that do
// not exist fall back to index.html so client-side routes survive a reload.
type StaticFileHandler struct {
	staticDir string
	logger    *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, logger *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		staticDir: staticDir,
		logger:    logger.Named("static-handler"),
	}
}

// ServeHTTP serves static files without caching
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	// path.Clean on a rooted path cannot climb above the root
	rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if rel == "" {
		rel = "index.html"
	}
	fullPath := filepath.Join(h.staticDir, filepath.FromSlash(rel))

	info, err := os.Stat(fullPath)
	switch {
	case err == nil && info.IsDir():
		fullPath = filepath.Join(fullPath, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	case os.IsNotExist(err) && path.Ext(rel) == "":
		fullPath = filepath.Join(h.staticDir, "index.html")
	case os.IsNotExist(err):
		h.logger.Debug("File not found", logger.String("path", fullPath))
		http.NotFound(w, r)
		return
	case err != nil:
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", fullPath))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	http.ServeFile(w, r, fullPath)
}
