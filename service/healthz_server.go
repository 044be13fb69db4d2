package service

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// HealthzServer answers liveness probes. It reports unhealthy once the
// last session ended with a runtime error.
type HealthzServer struct {
	ctx     context.Context
	server  *http.Server
	healthy atomic.Bool
}

func NewHealthzServer() *HealthzServer {
	h := &HealthzServer{}
	h.healthy.Store(true)
	return h
}

// Handler returns the CORS-wrapped handler serving /healthz
func (h *HealthzServer) Handler() http.Handler {
	hdlr := mux.NewRouter()
	hdlr.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

// SetHealthy changes what the probe reports
func (h *HealthzServer) SetHealthy(healthy bool) {
	h.healthy.Store(healthy)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	if !h.healthy.Load() {
		http.Error(w, "UNHEALTHY", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK")) //nolint:errcheck
}
