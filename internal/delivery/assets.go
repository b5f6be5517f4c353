package delivery

import (
	"embed"
	"io/fs"
)

//go:embed static
var staticFS embed.FS

// DefaultFiles returns the embedded scanner page and its assets
func DefaultFiles() fs.FS {
	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return fsys
}
