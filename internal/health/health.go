// Package health serves liveness, readiness and Prometheus metrics over
// HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyn4676086/multi-camera-sync/coordinator"
)

// StatusProvider is implemented by *coordinator.Coordinator.
type StatusProvider interface {
	Status() coordinator.Status
}

// Report is the /readiness body.
type Report struct {
	Status        string                  `json:"status"` // healthy, degraded, unhealthy
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Link          string                  `json:"link,omitempty"`
	LinkRunning   bool                    `json:"link_running"`
	Sensor        coordinator.SensorState `json:"sensor"`
	ClockSynced   bool                    `json:"clock_synced"`
	ClockDelayUS  int64                   `json:"clock_delay_us"`
	ClockOffsetUS int64                   `json:"clock_offset_us"`
	ClockAgeMS    int64                   `json:"clock_age_ms,omitempty"`
	TriggerRateHz float64                 `json:"trigger_rate_hz"`
	TriggerStable bool                    `json:"trigger_stable"`
}

// Server is the health HTTP server.
type Server struct {
	status   StatusProvider
	gatherer prometheus.Gatherer
	started  time.Time
	srv      *http.Server
	ln       net.Listener
}

// New returns a server for addr. Metrics are served from gatherer.
func New(addr string, status StatusProvider, gatherer prometheus.Gatherer) *Server {
	s := &Server{status: status, gatherer: gatherer, started: time.Now()}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.liveness)
	mux.HandleFunc("/readiness", s.readiness)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Check builds the readiness report.
func (s *Server) Check() Report {
	st := s.status.Status()
	r := Report{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Link:          st.Link,
		LinkRunning:   st.LinkRunning,
		Sensor:        st.Sensor,
		ClockSynced:   !st.ClockAt.IsZero(),
		ClockDelayUS:  st.Clock.DelayUS,
		ClockOffsetUS: st.Clock.OffsetUS,
		TriggerRateHz: st.Warmup.RateMean,
		TriggerStable: st.Warmup.IsStable,
	}
	if r.ClockSynced {
		r.ClockAgeMS = time.Since(st.ClockAt).Milliseconds()
	}

	switch {
	case !st.Running || !st.LinkRunning:
		r.Status = "unhealthy"
	case st.Sensor == coordinator.SensorFailed || !r.ClockSynced:
		r.Status = "degraded"
	}
	return r
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	r := s.Check()
	code := http.StatusOK
	if r.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health: write response", "error", err)
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	slog.Info("health: server listening",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/metrics"},
	)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health: server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
