package delivery

import (
	"io/fs"
	"net/http"
)

// DefaultDocument is served for "/" and for any path that does not name a file
const DefaultDocument = "index.html"

// Server serves the scanner's static page and assets from a file system,
// injecting the runtime API key into markup responses.
type Server struct {
	files  fs.FS
	secret string
	mux    *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(files fs.FS, secret string) *Server {
	return NewServerWithMux(files, secret, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(files fs.FS, secret string, mux *http.ServeMux) *Server {
	s := &Server{
		files:  files,
		secret: secret,
		mux:    mux,
	}
	s.registerRoutes()
	return s
}

// registerRoutes registers the catch-all file route. Every method is served
// the same way; responses are only ever 200 or 500.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleFile)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
