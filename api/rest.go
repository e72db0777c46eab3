// Package api serves the node's read-only HTTP surface.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solvenet/solvenet/core"
)

// Server exposes engine snapshots over HTTP. All endpoints are reads served
// from the engine's snapshot accessors; nothing here can mutate consensus
// state.
type Server struct {
	engine *core.Engine
	mux    *http.ServeMux
}

// NewServer builds the API handler around a consensus engine. When gossip
// is non-nil it is mounted at /gossip.
func NewServer(engine *core.Engine, gossip http.HandlerFunc) *Server {
	s := &Server{engine: engine, mux: http.NewServeMux()}
	s.mux.HandleFunc("/tip", s.getTip)
	s.mux.HandleFunc("/chain", s.getChain)
	s.mux.HandleFunc("/block/", s.getBlock)
	s.mux.HandleFunc("/finalized/", s.getFinalized)
	s.mux.HandleFunc("/healthz", s.healthz)
	s.mux.Handle("/metrics", promhttp.Handler())
	if gossip != nil {
		s.mux.HandleFunc("/gossip", gossip)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) getTip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.GetBestTip())
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	chain := s.engine.GetChainFromGenesis()
	writeJSON(w, map[string]interface{}{
		"length": len(chain),
		"blocks": chain,
	})
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(w, r, "/block/")
	if !ok {
		return
	}
	block := s.engine.GetBlockByHash(hash)
	if block == nil {
		http.Error(w, "block not found", http.StatusNotFound)
		return
	}
	writeJSON(w, block)
}

func (s *Server) getFinalized(w http.ResponseWriter, r *http.Request) {
	hash, ok := hashParam(w, r, "/finalized/")
	if !ok {
		return
	}
	writeJSON(w, map[string]bool{"finalized": s.engine.IsFinalized(hash)})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "tip": s.engine.GetBestTip().BlockHash.String()})
}

func hashParam(w http.ResponseWriter, r *http.Request, prefix string) (core.Hash, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	hash, err := core.ParseHash(raw)
	if err != nil {
		http.Error(w, "invalid block hash", http.StatusBadRequest)
		return core.Hash{}, false
	}
	return hash, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
