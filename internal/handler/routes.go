package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/upclosets/nova-voice-agent/internal/session"
	"github.com/upclosets/nova-voice-agent/internal/store"
)

// SessionFactory creates and connects a call session for a newly started
// room. It is optional; without it the webhook only routes teardown events.
type SessionFactory func(roomName string) (*session.CallSession, error)

// Manager wires the HTTP surface: health, LiveKit webhooks and the
// consultations read API.
type Manager struct {
	store      store.ConsultationStore
	hub        *session.Hub
	newSession SessionFactory
}

// NewManager creates the handler manager.
func NewManager(st store.ConsultationStore, hub *session.Hub, factory SessionFactory) *Manager {
	return &Manager{store: st, hub: hub, newSession: factory}
}

// SetupRoutes registers all routes on the router.
func (m *Manager) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", m.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/webhooks/livekit", m.HandleLiveKitWebhook).Methods(http.MethodPost)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(LoggingMiddleware)
	apiRouter.HandleFunc("/consultations", m.HandleListConsultations).Methods(http.MethodGet)
	apiRouter.HandleFunc("/consultations", m.HandleCreatePendingConsultation).Methods(http.MethodPost)
	apiRouter.HandleFunc("/consultations/{id}/confirm", m.HandleConfirmConsultation).Methods(http.MethodPost)
	apiRouter.HandleFunc("/consultations/{phone}", m.HandleGetConsultationByPhone).Methods(http.MethodGet)
}

// HandleHealth reports service liveness and the live session count.
func (m *Manager) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": m.hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
