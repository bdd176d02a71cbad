// Package resources provides static asset handling for the UI server.
package resources

import (
	"io/fs"
	"net/http"
)

// StaticDirectoryPath is the path to static assets from the module root.
const StaticDirectoryPath = "internal/ui/resources/static"

// IndexFile is the page served at the root of the UI.
const IndexFile = "index.html"

// IndexHandler serves the index page from fsys.
func IndexHandler(fsys fs.FS) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, fsys, IndexFile)
	})
}
