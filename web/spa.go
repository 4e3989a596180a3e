// Package web serves a built frontend as a single-page application (SPA).
//
// In development the frontend usually runs on its own dev server and
// STATIC_DIR stays unset, so no handler is mounted.
package web

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// Dir returns the filesystem rooted at a built frontend directory. It fails
// when the directory has no index.html.
func Dir(path string) (fs.FS, error) {
	fsys := os.DirFS(path)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, err
	}
	return fsys, nil
}

// SPAHandler returns an http.Handler that serves files from fsys and falls
// back to index.html for any path that doesn't match a file (client-side
// routing). API paths never fall back.
func SPAHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "api" || strings.HasPrefix(path, "api/") {
			http.NotFound(w, r)
			return
		}
		if path == "" {
			path = "index.html"
		}

		if f, err := fsys.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close static file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// Not found, serve index.html for SPA routing.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
