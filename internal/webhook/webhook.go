// Package webhook receives missed-call notifications from the PBX and exposes
// a read-only view of the callbacks in flight.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-callback-bot/internal/correlator"
	"github.com/sweeney/asterisk-callback-bot/internal/registry"
	"github.com/sweeney/asterisk-callback-bot/internal/render"
)

const submitTimeout = 5 * time.Second

// Submitter queues events for the correlator.
type Submitter interface {
	Submit(ctx context.Context, evt correlator.Event) error
}

// Snapshotter lists the live callback attempts.
type Snapshotter interface {
	Snapshot() []registry.Attempt
}

// Handler serves the webhook routes.
type Handler struct {
	events Submitter
	calls  Snapshotter
	log    *zap.Logger
}

// NewHandler creates a Handler. log may be nil.
func NewHandler(events Submitter, calls Snapshotter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{events: events, calls: calls, log: log}
}

// SetupRoutes registers the webhook routes on router.
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/missed/{phone}/{wait}", h.Missed).Methods("GET")
	router.HandleFunc("/healthz", h.Health).Methods("GET")
	router.HandleFunc("/calls", h.Calls).Methods("GET")
}

// Router returns a new router with all routes registered.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	h.SetupRoutes(router)
	return router
}

// Missed handles GET /missed/{phone}/{wait}, sent by the PBX dialplan when a
// queued caller hangs up unanswered.
func (h *Handler) Missed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	phone := render.NormalizeNumber(vars["phone"])
	if !validNumber(phone) {
		h.log.Warn("rejecting missed call with bad number", zap.String("phone", vars["phone"]))
		http.Error(w, "phone must be 3-20 digits", http.StatusBadRequest)
		return
	}
	wait, err := strconv.Atoi(vars["wait"])
	if err != nil || wait < 0 {
		h.log.Warn("rejecting missed call with bad wait", zap.String("wait", vars["wait"]))
		http.Error(w, "wait must be a non-negative integer", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	if err := h.events.Submit(ctx, correlator.MissedCall{Customer: phone, WaitSeconds: wait}); err != nil {
		h.log.Error("queueing missed call", zap.String("customer", phone), zap.Error(err))
		http.Error(w, "busy, try again", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Request processed successfully"))
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

type callsResponse struct {
	Count int                `json:"count"`
	Calls []registry.Attempt `json:"calls"`
}

// Calls lists the live attempts, oldest first.
func (h *Handler) Calls(w http.ResponseWriter, _ *http.Request) {
	calls := h.calls.Snapshot()
	if calls == nil {
		calls = []registry.Attempt{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(callsResponse{Count: len(calls), Calls: calls}); err != nil {
		h.log.Warn("encoding calls", zap.Error(err))
	}
}

func validNumber(s string) bool {
	if len(s) < 3 || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
