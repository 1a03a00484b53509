// Package api exposes the plugin state and reconfiguration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/plugin"
	"github.com/eddielth/pt100-south/service"
)

// Server serves the HTTP API of one service
type Server struct {
	svc    *service.Service
	server *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, svc *service.Service) *Server {
	s := &Server{svc: svc}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(os.Stdout, s.Router()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router returns the API routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/plugin/info", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/plugin/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/plugin/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/plugin/config", s.handlePutConfig).Methods(http.MethodPut)
	r.HandleFunc("/readings/latest", s.handleLatest).Methods(http.MethodGet)

	return r
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		logger.Info("API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server error: %v", err)
		}
	}()
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.svc.Engine().State()
	status := http.StatusOK
	if state == plugin.StateStopped || state == plugin.StateUninitialized {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": state.String()})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Engine().Describe())
}

type stateResponse struct {
	State string        `json:"state"`
	Pins  []int         `json:"pins"`
	Stats service.Stats `json:"stats"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	engine := s.svc.Engine()
	writeJSON(w, http.StatusOK, stateResponse{
		State: engine.State().String(),
		Pins:  engine.Pins(),
		Stats: s.svc.Stats(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Engine().Config())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	values, err := plugin.DecodeValues(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.svc.Reconfigure(values); err != nil {
		var cerr *plugin.ConfigError
		var serr *plugin.StateError
		switch {
		case errors.As(err, &cerr):
			writeError(w, http.StatusBadRequest, err)
		case errors.As(err, &serr):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, s.svc.Engine().Config())
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Latest())
}
