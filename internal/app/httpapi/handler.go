// Package httpapi exposes the admin/status HTTP API: lifecycle control,
// state snapshots for the status widget, the task journal, and Prometheus
// metrics.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/CryptoStream-Network/stream_layer/internal/app/metrics"
	"github.com/CryptoStream-Network/stream_layer/internal/awareness"
	"github.com/CryptoStream-Network/stream_layer/internal/journal"
	"github.com/CryptoStream-Network/stream_layer/internal/world"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Deps are the collaborators the API fronts.
type Deps struct {
	World   *world.World
	Core    *awareness.Core
	Journal journal.Store
	// JWTSecret protects mutating endpoints when non-empty; read endpoints
	// stay open for the status widget.
	JWTSecret string
	Log       *logger.Logger
}

type handler struct {
	deps Deps
	log  *logger.Logger
}

// NewHandler returns the instrumented admin API handler.
func NewHandler(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{deps: deps, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", h.state).Methods(http.MethodGet)
	api.HandleFunc("/awareness", h.awareness).Methods(http.MethodGet)
	api.HandleFunc("/tasks", h.tasks).Methods(http.MethodGet)

	// Mutating endpoints carry auth; reads stay open for the status widget.
	auth := requireAuth(deps.JWTSecret, log)
	api.Handle("/run", auth(http.HandlerFunc(h.run))).Methods(http.MethodPost)
	api.Handle("/shutdown", auth(http.HandlerFunc(h.shutdown))).Methods(http.MethodPost)
	api.Handle("/tasks/{id}/run", auth(http.HandlerFunc(h.runTask))).Methods(http.MethodPost)

	return metrics.InstrumentHandler(r)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	state := h.deps.World.State()
	status := http.StatusOK
	if state.Health == world.HealthFailing {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"health": string(state.Health)})
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.World.State())
}

func (h *handler) awareness(w http.ResponseWriter, r *http.Request) {
	if h.deps.Core == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("awareness core not wired"))
		return
	}
	state := h.deps.Core.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"self":          state.Self,
		"environmental": state.Environmental,
		"network":       state.Network,
		"temporal":      state.Temporal,
		"automation":    state.Automation,
		"iq":            h.deps.Core.IntelligenceQuotient(),
	})
}

func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AutoConnect bool `json:"auto_connect"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	ok := h.deps.World.Run(r.Context(), world.RunOptions{AutoConnect: payload.AutoConnect})
	state := h.deps.World.State()
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]interface{}{
		"ok":     ok,
		"health": string(state.Health),
		"errors": state.Errors,
	})
}

func (h *handler) shutdown(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.World.Shutdown(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"health": string(world.HealthStarting)})
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	type taskView struct {
		ID      string          `json:"id"`
		LastRun *journal.Record `json:"last_run,omitempty"`
	}

	var views []taskView
	if h.deps.Core != nil {
		if engine := h.deps.Core.Engine(); engine != nil {
			for _, id := range engine.TaskIDs() {
				view := taskView{ID: id}
				if h.deps.Journal != nil {
					if rec, found, err := h.deps.Journal.LastRun(r.Context(), id); err == nil && found {
						view.LastRun = &rec
					}
				}
				views = append(views, view)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": views})
}

func (h *handler) runTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.deps.Core == nil || h.deps.Core.Engine() == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("automation engine not active"))
		return
	}

	started := time.Now().UTC()
	err := h.deps.Core.Engine().RunTaskNow(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":  id,
		"duration": time.Since(started).String(),
	})
}

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
