package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lox/reservoirviz/internal/fetch"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/imagegen"
	"github.com/lox/reservoirviz/internal/maplayer"
	"github.com/lox/reservoirviz/internal/store"
	"github.com/lox/reservoirviz/internal/surface"
)

type Server struct {
	store      *store.Store
	layers     *maplayer.Builder
	legends    *imagegen.Cache
	port       string
	log        *zap.Logger
	allowPaths bool
}

func NewServer(st *store.Store, layers *maplayer.Builder, legends *imagegen.Cache, port string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		store:   st,
		layers:  layers,
		legends: legends,
		port:    port,
		log:     log,
	}
}

// SetAllowPaths lets surface endpoints load raw locations given with
// path= instead of only catalog names.
func (s *Server) SetAllowPaths(allow bool) {
	s.allowPaths = allow
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/imports", s.handleAPIImports)
	mux.HandleFunc("GET /api/surfaces", s.handleAPISurfaces)
	mux.HandleFunc("GET /api/surfaces/layer", s.handleAPILayer)
	mux.HandleFunc("GET /api/surfaces/fence", s.handleAPIFence)
	mux.HandleFunc("GET /api/xsection", s.handleAPIXSection)
	mux.HandleFunc("GET /api/colormaps", s.handleAPIColormaps)
	mux.HandleFunc("GET /api/colormaps/{file}", s.handleColormapLegend)
	mux.HandleFunc("GET /api/rft/wells", s.handleAPIWells)
	mux.HandleFunc("GET /api/rft/ensembles", s.handleAPIEnsembles)
	mux.HandleFunc("GET /api/rft/crossplot", s.handleAPICrossplot)
	mux.HandleFunc("GET /api/rft/crossplot.png", s.handleCrossplotPreview)
	mux.HandleFunc("GET /api/rft/misfit", s.handleAPIMisfit)
	mux.HandleFunc("GET /api/rft/map", s.handleAPIMap)
	mux.HandleFunc("GET /api/rft/formation", s.handleAPIFormation)
	return s.logRequests(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// badRequest marks errors caused by the caller's parameters.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func invalid(err error) error { return badRequest{err} }

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, frame.ErrUnknownColumn),
		errors.Is(err, imagegen.ErrUnknownColormap),
		errors.Is(err, surface.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, fetch.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type HealthStatus struct {
	Status        string   `json:"status"`
	SchemaVersion int      `json:"schema_version"`
	Surfaces      int      `json:"surfaces"`
	Wells         int      `json:"wells"`
	Errors        []string `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}

	health := HealthStatus{Status: "ok"}
	if v, err := s.store.MigrationVersion(ctx); err != nil {
		health.Errors = append(health.Errors, "schema: "+err.Error())
	} else {
		health.SchemaVersion = v
	}
	if surfaces, err := s.store.Surfaces(ctx); err != nil {
		health.Errors = append(health.Errors, "surfaces: "+err.Error())
	} else {
		health.Surfaces = len(surfaces)
	}
	if wells, err := s.store.Wells(ctx); err != nil {
		health.Errors = append(health.Errors, "wells: "+err.Error())
	} else {
		health.Wells = len(wells)
	}
	if len(health.Errors) > 0 {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}
