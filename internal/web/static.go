// Package web serves the dashboard's static assets.
package web

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// mimeTypes maps known extensions to content types. Anything else is
// served as a generic binary.
var mimeTypes = map[string]string{
	".html": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
}

const defaultContentType = "application/octet-stream"

// StaticHandler serves files under root. "/" maps to index.html; any other
// path maps to the same-named file. Missing files yield 404 "Not found".
type StaticHandler struct {
	root string
	log  zerolog.Logger
}

// NewStaticHandler creates a handler rooted at dir.
func NewStaticHandler(dir string, log zerolog.Logger) *StaticHandler {
	return &StaticHandler{
		root: dir,
		log:  log.With().Str("component", "static").Logger(),
	}
}

// ServeHTTP implements http.Handler.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "/" {
		name = "/index.html"
	}

	// path.Clean collapses any ".." segments so requests cannot escape
	// the asset root.
	name = path.Clean("/" + name)
	full := filepath.Join(h.root, filepath.FromSlash(name))

	data, err := os.ReadFile(full)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not found"))
		return
	}

	contentType, ok := mimeTypes[strings.ToLower(filepath.Ext(full))]
	if !ok {
		contentType = defaultContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}
