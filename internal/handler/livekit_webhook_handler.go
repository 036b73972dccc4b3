package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/livekit/protocol/livekit"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// HandleLiveKitWebhook processes LiveKit webhook events. It always returns
// 200 so LiveKit does not retry events this instance cannot act on.
func (m *Manager) HandleLiveKitWebhook(w http.ResponseWriter, r *http.Request) {
	var event livekit.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		logger.Base().Error("Failed to decode LiveKit webhook", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	roomName := ""
	if event.Room != nil {
		roomName = event.Room.Name
	}
	logger.Base().Info("LiveKit webhook", zap.String("event", event.Event), zap.String("room", roomName))

	switch event.Event {
	case "room_started":
		m.handleRoomStarted(roomName)
	case "room_finished":
		m.handleRoomFinished(roomName)
	case "participant_joined":
		m.handleParticipantJoined(&event, roomName)
	case "participant_left":
		m.handleParticipantLeft(&event, roomName)
	default:
		logger.Base().Debug("Unhandled LiveKit event", zap.String("event", event.Event))
	}

	w.WriteHeader(http.StatusOK)
}

// handleRoomStarted creates a call session for the new room.
func (m *Manager) handleRoomStarted(roomName string) {
	if m.newSession == nil || roomName == "" {
		return
	}
	if _, exists := m.hub.Lookup(roomName); exists {
		logger.Base().Warn("Session already exists for room", zap.String("room", roomName))
		return
	}

	cs, err := m.newSession(roomName)
	if err != nil {
		logger.Base().Error("Failed to create call session", zap.String("room", roomName), zap.Error(err))
		return
	}
	m.hub.Add(cs)
	go cs.Connect(context.Background())
}

// handleRoomFinished ensures teardown has run for a room the server already
// closed.
func (m *Manager) handleRoomFinished(roomName string) {
	if cs, ok := m.hub.Lookup(roomName); ok {
		cs.BeginTermination()
	}
}

func (m *Manager) handleParticipantJoined(event *livekit.WebhookEvent, roomName string) {
	if event.Participant == nil {
		return
	}
	logger.Base().Info("Participant joined",
		zap.String("participant", event.Participant.Identity),
		zap.String("room", roomName))
}

// handleParticipantLeft terminates the session when the caller hangs up
// first.
func (m *Manager) handleParticipantLeft(event *livekit.WebhookEvent, roomName string) {
	if event.Participant == nil {
		return
	}
	identity := event.Participant.Identity
	logger.Base().Info("Participant left",
		zap.String("participant", identity),
		zap.String("room", roomName))

	isCaller := event.Participant.Kind == livekit.ParticipantInfo_SIP || strings.HasPrefix(identity, "sip_")
	if !isCaller {
		return
	}
	if cs, ok := m.hub.Lookup(roomName); ok {
		cs.BeginTermination()
	}
}
