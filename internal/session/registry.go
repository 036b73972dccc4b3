package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"github.com/upclosets/nova-voice-agent/pkg/redis"
	"go.uber.org/zap"
)

const (
	cleanupChannel   = "upclosets:voice:session:cleanup"
	sessionKeyPrefix = "upclosets:voice:session:info"
	sessionTTL       = 1 * time.Hour
)

// Info is the monitoring record kept in Redis for a live call session.
type Info struct {
	SessionID   string    `json:"sessionId"`
	InstanceID  string    `json:"instanceId"`
	RoomName    string    `json:"roomName"`
	CallerPhone string    `json:"callerPhone,omitempty"`
	StartTime   time.Time `json:"startTime"`
}

// CleanupMessage is the payload for cleanup broadcasts between instances.
type CleanupMessage struct {
	SessionID string `json:"sessionId"`
}

// Registry keeps cross-instance visibility of live call sessions in Redis.
type Registry struct {
	redisSvc   redis.ServiceInterface
	instanceID string
}

// NewRegistry returns a registry identified by this instance.
func NewRegistry(redisSvc redis.ServiceInterface, instanceID string) *Registry {
	return &Registry{redisSvc: redisSvc, instanceID: instanceID}
}

// Register records a live session, with a TTL as a safety net against
// instances that die without unregistering.
func (r *Registry) Register(ctx context.Context, info Info) error {
	info.InstanceID = r.instanceID
	if info.StartTime.IsZero() {
		info.StartTime = time.Now()
	}

	data, _ := json.Marshal(info)
	key := fmt.Sprintf("%s:%s", sessionKeyPrefix, info.SessionID)

	err := r.redisSvc.SetValue(ctx, key, string(data), sessionTTL)
	if err == nil {
		logger.Base().Info("Session registered",
			zap.String("session_id", info.SessionID),
			zap.String("instance_id", r.instanceID))
	}
	return err
}

// Unregister removes a session record.
func (r *Registry) Unregister(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf("%s:%s", sessionKeyPrefix, sessionID)
	return r.redisSvc.DelValue(ctx, key)
}

// NotifyCleanup broadcasts a cleanup request to all instances.
func (r *Registry) NotifyCleanup(ctx context.Context, sessionID string) error {
	return r.redisSvc.Publish(ctx, cleanupChannel, CleanupMessage{SessionID: sessionID})
}

// SubscribeToCleanup listens for cleanup broadcasts from other instances.
func (r *Registry) SubscribeToCleanup(ctx context.Context, handler func(sessionID string)) error {
	return r.redisSvc.Subscribe(ctx, cleanupChannel, func(payload string) {
		var msg CleanupMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("Failed to unmarshal cleanup message", zap.Error(err))
			return
		}
		handler(msg.SessionID)
	})
}
