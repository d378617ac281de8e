package rpcapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/robustmq/robustmq/pkg/metrics"
)

// AdminServer exposes /health, /ready, and /metrics over plain HTTP
// alongside the gRPC placement API, the same split cuemby-warren's
// pkg/api.HealthServer uses.
type AdminServer struct {
	manager MetaManager
	mux     *http.ServeMux
}

// NewAdminServer builds the admin HTTP mux for manager.
func NewAdminServer(manager MetaManager) *AdminServer {
	as := &AdminServer{manager: manager, mux: http.NewServeMux()}
	as.mux.HandleFunc("/health", as.healthHandler)
	as.mux.HandleFunc("/ready", as.readyHandler)
	as.mux.Handle("/metrics", metrics.Handler())
	return as
}

// Start serves the admin mux on addr until the process exits or the
// listener errors.
func (as *AdminServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      as.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (as *AdminServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (as *AdminServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if as.manager == nil {
		checks["raft"] = "not initialized"
		ready = false
	} else if as.manager.IsLeader() {
		checks["raft"] = "leader"
	} else if leader := as.manager.LeaderAddr(); leader != "" {
		checks["raft"] = "follower, leader at " + leader
	} else {
		checks["raft"] = "no leader elected"
		ready = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(readyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}
