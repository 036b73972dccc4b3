// Package livekit adapts the LiveKit server API to the room interface the
// call lifecycle code depends on. Teardown goes through the control plane
// (RemoveParticipant, DeleteRoom) rather than a media connection, so it works
// even when the media path is already gone.
package livekit

import (
	"context"
	"fmt"
	"strings"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/upclosets/nova-voice-agent/internal/voice"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

const sipIdentityPrefix = "sip_"

// RoomService issues control-plane operations against a LiveKit deployment.
type RoomService struct {
	svc *lksdk.RoomServiceClient
}

// NewRoomService creates a LiveKit control-plane client.
func NewRoomService(cfg *Config) (*RoomService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LiveKit config: %w", err)
	}

	svc := lksdk.NewRoomServiceClient(cfg.ServerURL, cfg.APIKey, cfg.APISecret)
	logger.Base().Info("LiveKit room service initialized", zap.String("server_url", cfg.ServerURL))
	return &RoomService{svc: svc}, nil
}

// Room binds the service to one named room as a voice.Room.
func (s *RoomService) Room(name string) *RoomHandle {
	return &RoomHandle{svc: s.svc, roomName: name}
}

// RoomHandle is the control-plane view of one room.
type RoomHandle struct {
	svc      *lksdk.RoomServiceClient
	roomName string
}

// ListParticipants returns the room's current participants.
func (r *RoomHandle) ListParticipants(ctx context.Context) ([]voice.Participant, error) {
	resp, err := r.svc.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: r.roomName})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants in %s: %w", r.roomName, err)
	}

	participants := make([]voice.Participant, 0, len(resp.Participants))
	for _, pi := range resp.Participants {
		participants = append(participants, voice.Participant{
			Identity:   pi.Identity,
			Attributes: pi.Attributes,
			Metadata:   pi.Metadata,
			SIP:        pi.Kind == livekit.ParticipantInfo_SIP || strings.HasPrefix(pi.Identity, sipIdentityPrefix),
		})
	}
	return participants, nil
}

// DisconnectParticipant removes one participant from the room.
func (r *RoomHandle) DisconnectParticipant(ctx context.Context, identity string) error {
	_, err := r.svc.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     r.roomName,
		Identity: identity,
	})
	if err != nil {
		return fmt.Errorf("failed to remove participant %s: %w", identity, err)
	}
	return nil
}

// Close deletes the room, disconnecting anyone still in it.
func (r *RoomHandle) Close(ctx context.Context) error {
	_, err := r.svc.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: r.roomName})
	if err != nil {
		return fmt.Errorf("failed to delete room %s: %w", r.roomName, err)
	}
	return nil
}
