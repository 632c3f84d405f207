package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scanner-caption-service/internal/app"
	"scanner-caption-service/internal/service/captions"
)

// CaptionsResponse is the body of GET /v1/captions.
type CaptionsResponse struct {
	Live   string           `json:"live"`
	Final  string           `json:"final"`
	Blocks []captions.Block `json:"blocks"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, store *captions.Store, hub *Hub) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Overlay surfaces
	r.Get("/overlay", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(store.Snapshot()))
	})
	r.Get("/ws", hub.ServeWS)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/captions", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, CaptionsResponse{
				Live:   store.LiveText(),
				Final:  store.FinalText(),
				Blocks: store.Visible(),
			})
		})
		r.Get("/captions/history", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, CaptionsResponse{
				Live:   store.LiveText(),
				Final:  store.FinalText(),
				Blocks: store.Blocks(),
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
