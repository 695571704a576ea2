package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/dyluth/atelier/internal/agent"
	"github.com/dyluth/atelier/internal/bus"
	"github.com/dyluth/atelier/pkg/blackboard"
)

// ObserverServer exposes health and live system state over HTTP.
type ObserverServer struct {
	studio *Studio
	server *http.Server
}

// NewObserverServer creates an observer for s.
func NewObserverServer(s *Studio) *ObserverServer {
	return &ObserverServer{studio: s}
}

// Handler returns the observer's routes.
func (o *ObserverServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", o.healthCheckHandler)
	mux.HandleFunc("/state", o.stateHandler)
	return mux
}

// Start serves on addr in the background.
func (o *ObserverServer) Start(addr string) error {
	o.server = &http.Server{
		Addr:         addr,
		Handler:      o.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Observer] Server error: %v", err)
		}
	}()

	log.Printf("[Observer] Listening on %s", addr)
	return nil
}

// Shutdown gracefully shuts down the observer server.
func (o *ObserverServer) Shutdown(ctx context.Context) error {
	if o.server == nil {
		return nil
	}
	return o.server.Shutdown(ctx)
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}

// healthCheckHandler returns 200 when the blackboard is reachable or
// disabled, 503 otherwise.
func (o *ObserverServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "healthy", Redis: "disabled"}
	code := http.StatusOK

	if board := o.studio.Board(); board != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := board.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	writeJSON(w, code, response)
}

// SystemSnapshot is the observable state of one running project.
type SystemSnapshot struct {
	ProjectID string                          `json:"project_id"`
	Project   *blackboard.Project             `json:"project,omitempty"`
	Agents    map[blackboard.Role]agent.State `json:"agents"`
	Bus       bus.Stats                       `json:"bus"`
}

// StateResponse is the JSON body of GET /state.
type StateResponse struct {
	Instance string                         `json:"instance"`
	Weights  map[blackboard.Role]WeightView `json:"weights"`
	Systems  []SystemSnapshot               `json:"systems"`
}

// WeightView is one role's learned strategy table.
type WeightView struct {
	Weights   map[string]float64 `json:"weights"`
	Preferred []string           `json:"preferred"`
}

// Snapshot captures every running system and the shared weight tables.
func (s *Studio) Snapshot() StateResponse {
	resp := StateResponse{
		Instance: s.cfg.Instance,
		Weights:  make(map[blackboard.Role]WeightView, len(GenerationRoles)),
		Systems:  []SystemSnapshot{},
	}
	for _, role := range GenerationRoles {
		weights, preferred, _ := s.Weights(role)
		resp.Weights[role] = WeightView{Weights: weights, Preferred: preferred}
	}
	for id, sys := range s.active() {
		resp.Systems = append(resp.Systems, SystemSnapshot{
			ProjectID: id,
			Project:   sys.Director.Project(),
			Agents:    sys.Bus.SystemState(),
			Bus:       sys.Bus.Stats(),
		})
	}
	sort.Slice(resp.Systems, func(i, j int) bool {
		return resp.Systems[i].ProjectID < resp.Systems[j].ProjectID
	})
	return resp
}

func (o *ObserverServer) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, o.studio.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Observer] %v", fmt.Errorf("failed to encode response: %w", err))
	}
}
