// Package static holds the browser UI.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed files
var files embed.FS

// FileSystemHandler serves static/files/ from disk when present, which is
// handy while editing the UI, and the embedded copy otherwise.
func FileSystemHandler() http.Handler {
	if info, err := os.Stat("static/files/"); err == nil && info.IsDir() {
		return http.FileServer(http.Dir("static/files/"))
	}
	sub, err := fs.Sub(files, "files")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

func ReadAll(name string) ([]byte, error) {
	return files.ReadFile("files/" + name)
}
