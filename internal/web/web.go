// Package web serves the embedded settings UI.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
)

//go:embed static/*.html static/*.css static/*.js
var assetsFS embed.FS

// Handler returns an http.Handler serving the embedded settings page.
// Panics only if the embedded filesystem is corrupted, which cannot happen
// at runtime since assets are embedded at compile time.
func Handler() http.Handler {
	sub, err := fs.Sub(assetsFS, "static")
	if err != nil {
		panic(fmt.Sprintf("web: failed to create sub-filesystem: %v", err))
	}
	return http.FileServer(http.FS(sub))
}
