// Package web provides the HTTP brightness endpoint and status pages for the
// phase-dimmer daemon.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/phase-dimmer/internal/status"
)

// Dimmer is the brightness control the server drives.
type Dimmer interface {
	SetBrightness(v int)
	Brightness() int
}

// Server serves the brightness endpoint and status pages over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	dimmer     Dimmer
}

// New creates a Server that reads state from the given tracker and applies
// brightness requests to d.
func New(addr string, tracker *status.Tracker, d Dimmer) *Server {
	s := &Server{tracker: tracker, dimmer: d}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleBrightness)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleBrightness answers GET /?brightness=N with the current brightness as
// a bare integer. Out-of-range values are clamped; a missing or unparsable
// value leaves brightness unchanged.
func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if raw := r.URL.Query().Get("brightness"); raw != "" {
		v, err := strconv.Atoi(raw)
		switch {
		case err == nil, errors.Is(err, strconv.ErrRange):
			// Atoi saturates out-of-range values; SetBrightness clamps them.
			s.dimmer.SetBrightness(v)
		default:
			log.Printf("http: ignoring brightness %q: %v", raw, err)
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(strconv.Itoa(s.dimmer.Brightness())))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
