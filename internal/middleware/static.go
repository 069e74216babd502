package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

// StaticFileServer serves files from dir, such as the OpenAPI document.
// Directories and missing files get a JSON 404.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			writeError(w, "Not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeFile(w, r, path)
	})
}
