package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/rotatingbox/internal/capture"
	"github.com/bryanchriswhite/rotatingbox/internal/config"
	"github.com/bryanchriswhite/rotatingbox/internal/frame"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/output"
)

// Version reported by /api/health
const Version = "0.1.0"

// DefaultPushInterval paces /api/status/stream
const DefaultPushInterval = time.Second

// FrameSource is the part of the frame orchestrator the server reads
type FrameSource interface {
	Stats() frame.Stats
	Artifact() *capture.Artifact
}

// CaptureSource reports device counters
type CaptureSource interface {
	Stats() capture.Stats
}

// Options wires the server to the running components. Nil members disable
// the routes that need them.
type Options struct {
	Config   *config.Manager
	Frame    FrameSource
	Capture  CaptureSource
	MJPEG    *output.MJPEGOutput
	Gatherer prometheus.Gatherer
	// PushInterval defaults to DefaultPushInterval
	PushInterval time.Duration
}

// Status is the body of /api/status. Frame stats are inlined.
type Status struct {
	frame.Stats
	Capture *capture.Stats     `json:"capture,omitempty"`
	Stream  *output.MJPEGStats `json:"stream,omitempty"`
}

// Server represents the HTTP status API
type Server struct {
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader
	log      *zerolog.Logger
	http     *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		log:    logger.WithComponent("api"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)
	api.HandleFunc("/capture/artifact.png", s.handleArtifact).Methods("GET")

	if s.opts.Config != nil {
		api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
		api.HandleFunc("/config/{key}", s.handleSetConfig).Methods("PUT")
	}

	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.opts.MJPEG != nil {
		s.router.HandleFunc("/stream", s.opts.MJPEG.StreamHandler())
		s.router.HandleFunc("/", s.opts.MJPEG.ViewerHandler())
	}
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown
func (s *Server) Start(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("Status server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for handlers up to ctx
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// status assembles the current snapshot
func (s *Server) status() Status {
	var st Status
	if s.opts.Frame != nil {
		st.Stats = s.opts.Frame.Stats()
	}
	if s.opts.Capture != nil {
		cs := s.opts.Capture.Stats()
		st.Capture = &cs
	}
	if s.opts.MJPEG != nil {
		ms := s.opts.MJPEG.Stats()
		st.Stream = &ms
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

// handleStatusStream pushes the status snapshot until the client goes away
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only detect the close; clients send nothing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.status()); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.opts.Frame == nil {
		http.Error(w, "No artifact bound", http.StatusNotFound)
		return
	}
	a := s.opts.Frame.Artifact()
	if a == nil {
		http.Error(w, "No artifact bound", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Artifact-Seq", fmt.Sprint(a.Seq))
	w.Header().Set("X-Artifact-Placeholder", fmt.Sprint(a.Placeholder))
	if err := png.Encode(w, a.Image); err != nil {
		s.log.Debug().Err(err).Msg("Artifact encode failed")
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.opts.Config.Get())
}

// handleSetConfig persists one key if the result still validates. Running
// components keep their settings until restart.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.opts.Config.Apply(key, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.opts.Config.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.Info().Str("key", key).Str("value", req.Value).Msg("Configuration updated")
	writeJSON(w, map[string]string{"status": "success", "applies": "restart"})
}
