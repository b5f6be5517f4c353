package delivery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"syscall"
)

const defaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "text/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

var errIsDir = errors.New("is a directory")

// handleFile serves the requested file, or the default document when the
// path names nothing servable
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := resolvePath(r.URL.Path)
	contentType := ContentType(name)

	data, err := readFile(s.files, name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errIsDir) {
		name = DefaultDocument
		contentType = ContentType(DefaultDocument)
		data, err = readFile(s.files, DefaultDocument)
	}
	if err != nil {
		code := errorCode(err)
		slog.Error("Failed to read file", "path", r.URL.Path, "file", name, "code", code, "error", err)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Server Error: %s", code)
		return
	}

	if contentType == "text/html" {
		data = injectSecret(data, s.secret)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing response", "path", r.URL.Path, "error", err)
		return
	}
	slog.Info("Served file", "method", r.Method, "path", r.URL.Path, "file", name, "bytes", len(data))
}

// resolvePath maps a request path to a file name within the served tree
func resolvePath(urlPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		return DefaultDocument
	}
	return name
}

// ContentType returns the content type for a file name based on its
// extension
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return defaultContentType
}

// readFile reads a regular file. Directories are reported as errIsDir.
func readFile(fsys fs.FS, name string) ([]byte, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("read %s: %w", name, errIsDir)
	}
	return fs.ReadFile(fsys, name)
}

// errorCode names a read failure the way the response body reports it
func errorCode(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	case errors.Is(err, errIsDir), errors.Is(err, syscall.EISDIR):
		return "EISDIR"
	default:
		return "EIO"
	}
}

// injectSecret inserts the API key script before the first </head>. Markup
// without a head close tag is returned unchanged.
func injectSecret(markup []byte, secret string) []byte {
	i := bytes.Index(markup, []byte("</head>"))
	if i < 0 {
		return markup
	}

	// json.Marshal escapes <, > and & so the value cannot close the script
	quoted, err := json.Marshal(secret)
	if err != nil {
		quoted = []byte(`""`)
	}

	var buf bytes.Buffer
	buf.Grow(len(markup) + len(quoted) + 48)
	buf.Write(markup[:i])
	buf.WriteString("<script>window.OPENAI_API_KEY = ")
	buf.Write(quoted)
	buf.WriteString(";</script>")
	buf.Write(markup[i:])
	return buf.Bytes()
}
