// Package frontend serves a soundboard site directory in-process, so a
// file:// origin behaves like an http one: directory paths answer with their
// index.html, files carry a content type, and nothing is ever redirected.
package frontend

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/zjrosen/creek-soundboard/internal/log"
)

// NewSiteHandler serves the files of site. Unlike http.FileServer it never
// redirects, so "/index.html" and "/" both answer 200 and can be cached under
// their own keys.
func NewSiteHandler(site fs.FS) http.Handler {
	return &siteHandler{site: site}
}

type siteHandler struct {
	site fs.FS
}

func (s *siteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "."
	}

	f, info, err := s.open(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
		return
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case err != nil:
		log.ErrorErr(log.CatHTTP, "Failed to open site file", err, "path", r.URL.Path)
		http.Error(w, "error reading file", http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()

	content, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, "error reading file", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
}

// open opens name, or name/index.html when name is a directory.
func (s *siteHandler) open(name string) (fs.File, fs.FileInfo, error) {
	f, err := s.site.Open(name)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !info.IsDir() {
		return f, info, nil
	}
	_ = f.Close()
	return s.open(path.Join(name, "index.html"))
}
