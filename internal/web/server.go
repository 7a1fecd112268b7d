package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riskbot/internal/engine"
)

// Server exposes status, trade history, and Prometheus metrics, plus a
// manual close endpoint as the operator's kill switch.
type Server struct {
	engine *engine.Engine
	http   *http.Server
}

func NewServer(port string, eng *engine.Engine) *Server {
	s := &Server{engine: eng}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/trades", s.handleTrades)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/close", s.handleClose)
	mux.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run it in a goroutine.
func (s *Server) Start() error {
	log.Printf("🌍 Web: listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Status())
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Trades())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Stats())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.engine.CloseAll(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "closed"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ Web: encode response: %v", err)
	}
}
