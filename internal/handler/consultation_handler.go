package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/upclosets/nova-voice-agent/internal/domain"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const recentConsultationsLimit = 50

// HandleListConsultations returns the newest consultation records.
func (m *Manager) HandleListConsultations(w http.ResponseWriter, r *http.Request) {
	consultations, err := m.store.ListRecent(r.Context(), recentConsultationsLimit)
	if err != nil {
		logger.Base().Error("Failed to list consultations", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list consultations"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consultations": consultations,
		"count":         len(consultations),
	})
}

// HandleGetConsultationByPhone returns the latest consultation for a phone
// number.
func (m *Manager) HandleGetConsultationByPhone(w http.ResponseWriter, r *http.Request) {
	phone := mux.Vars(r)["phone"]

	consultation, err := m.store.FindByPhone(r.Context(), phone)
	if err != nil {
		logger.Base().Error("Failed to look up consultation", zap.String("phone", phone), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to look up consultation"})
		return
	}
	if consultation == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "consultation not found"})
		return
	}
	writeJSON(w, http.StatusOK, consultation)
}

// HandleCreatePendingConsultation records a consultation awaiting caller
// confirmation, for bookings taken outside a live call.
func (m *Manager) HandleCreatePendingConsultation(w http.ResponseWriter, r *http.Request) {
	var c domain.Consultation
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id, err := m.store.InsertPending(r.Context(), &c)
	if err != nil {
		logger.Base().Error("Failed to create pending consultation", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create consultation"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "status": c.Status})
}

// HandleConfirmConsultation promotes a pending consultation to scheduled.
func (m *Manager) HandleConfirmConsultation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := m.store.Confirm(r.Context(), id); err != nil {
		logger.Base().Error("Failed to confirm consultation", zap.String("record_id", id), zap.Error(err))
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "consultation not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": domain.StatusScheduled})
}
