//go:build !dev

package resources

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// FS returns the static assets.
func FS() fs.FS {
	fsys, _ := fs.Sub(staticFS, "static")
	return fsys
}

// Handler serves the embedded assets under /static/. Asset names carry no
// content hash, so browsers revalidate them hourly.
func Handler() http.Handler {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(FS())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}

// Dev reports whether assets are read from disk.
const Dev = false
