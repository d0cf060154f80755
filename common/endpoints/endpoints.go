// Package endpoints serves the http monitoring surface shared by the
// binaries: a health check, rendered stats, and registered inspectors
// that dump live component state.
package endpoints

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dodohome/dodo/common/stats"
)

func NewStatusServer(addr string, stat stats.StatsReceiver) *StatusServer {
	s := &StatusServer{
		Addr:  addr,
		Stats: stat,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/", helpHandler)
	s.mux.HandleFunc("/health", healthHandler)
	s.mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	return s
}

type StatusServer struct {
	Addr  string
	Stats stats.StatsReceiver
	mux   *http.ServeMux
}

// AddInspector serves dump output under /admin/<name>.
func (s *StatusServer) AddInspector(name string, dump func() ([]byte, error)) {
	s.mux.HandleFunc("/admin/"+name, func(w http.ResponseWriter, r *http.Request) {
		data, err := dump()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Write(data)
	})
}

// Handler exposes the mux so tests and embedding servers can mount it.
func (s *StatusServer) Handler() http.Handler {
	return s.mux
}

func (s *StatusServer) Serve() error {
	log.Info("Serving http status & stats on ", s.Addr)
	return http.ListenAndServe(s.Addr, s.mux)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Common paths: '/health', '/admin/metrics.json', '/admin/{INSPECTOR}'", 501)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *StatusServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
}

type StatScope string

// MakeStatsReceiver returns a latched receiver scoped for one component.
// Renders serve 15s snapshots so scrapes see a stable window.
func MakeStatsReceiver(scope StatScope) stats.StatsReceiver {
	s, _ := stats.NewCustomStatsReceiver(
		stats.NewJSONStatsRegistry,
		15*time.Second)
	return s.Scope(string(scope))
}
