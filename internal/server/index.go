package server

import (
	"fmt"
	"net/http"
)

// HeaderServerVersion carries "<name> <version>" on the probe response.
const HeaderServerVersion = "X-Server-Version"

// indexHandler is the unauthenticated liveness probe.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(HeaderServerVersion, s.version)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s\n", s.version)
}
