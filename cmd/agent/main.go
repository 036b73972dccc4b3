package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/upclosets/nova-voice-agent/internal/adapters/livekit"
	"github.com/upclosets/nova-voice-agent/internal/config"
	"github.com/upclosets/nova-voice-agent/internal/handler"
	"github.com/upclosets/nova-voice-agent/internal/scheduler"
	"github.com/upclosets/nova-voice-agent/internal/session"
	"github.com/upclosets/nova-voice-agent/internal/store"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	redispkg "github.com/upclosets/nova-voice-agent/pkg/redis"
	"github.com/upclosets/nova-voice-agent/pkg/twilio"
	"go.uber.org/zap"
)

// Server hosts the consultation voice agent's HTTP surface.
type Server struct {
	cfg    *config.AgentConfig
	router *mux.Router
}

// NewServer wires the agent's services and routes.
func NewServer(cfg *config.AgentConfig, manager *handler.Manager) *Server {
	router := mux.NewRouter()
	manager.SetupRoutes(router)
	return &Server{cfg: cfg, router: router}
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("Starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

func main() {
	// .env is for local development; deployed environments inject real env vars.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadFromEnv()
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		log.Printf("Failed to initialize zap logger, falling back to std log: %v", err)
	}
	defer logger.Sync()

	// A missing required credential means the process must not accept calls.
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	mongoClient, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to document store: %v", err)
	}
	defer func() { _ = mongoClient.Disconnect(ctx) }()
	consultationStore := store.NewMongoConsultationStore(mongoClient, cfg.MongoDatabase)

	var registry *session.Registry
	if cfg.RedisEnabled() {
		redisSvc, err := redispkg.NewService(&redispkg.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Base().Warn("Redis unavailable, session registry disabled", zap.Error(err))
		} else {
			registry = session.NewRegistry(redisSvc, instanceID())
			if err := registry.SubscribeToCleanup(ctx, func(sessionID string) {
				logger.Base().Info("Session cleanup broadcast received", zap.String("session_id", sessionID))
			}); err != nil {
				logger.Base().Warn("Failed to subscribe to session cleanup channel", zap.Error(err))
			}
		}
	}

	callControl := twilio.NewCallControlService(cfg.TwilioAccountSID, cfg.TwilioAuthToken)

	var roomService *livekit.RoomService
	if cfg.LiveKitEnabled() {
		roomService, err = livekit.NewRoomService(&livekit.Config{
			ServerURL: cfg.LiveKitServerURL,
			APIKey:    cfg.LiveKitAPIKey,
			APISecret: cfg.LiveKitAPISecret,
		})
		if err != nil {
			log.Fatalf("Failed to initialize LiveKit room service: %v", err)
		}
	} else {
		logger.Base().Warn("LiveKit not configured, room teardown operations disabled")
	}

	hub := session.NewHub()
	sched := scheduler.New(consultationStore)

	sessionCfg := session.Config{
		IdentitySettleDelay: cfg.IdentitySettleDelay,
		GraceDelay:          cfg.TerminationGraceDelay,
		FarewellTimeout:     cfg.FarewellTimeout,
		FarewellHoldoff:     cfg.FarewellHoldoff,
		StageTimeout:        cfg.TeardownStageTimeout,
	}

	var factory handler.SessionFactory
	if roomService != nil {
		factory = func(roomName string) (*session.CallSession, error) {
			handles := session.Handles{
				Room:        roomService.Room(roomName),
				CallControl: callControl,
			}
			return session.New(roomName, sessionCfg, handles, sched, registry, hub.Remove), nil
		}
	}

	manager := handler.NewManager(consultationStore, hub, factory)
	server := NewServer(cfg, manager)

	logger.Base().Info("Consultation voice agent initialized",
		zap.String("port", cfg.Port),
		zap.Bool("twilio_enabled", callControl.Enabled()),
		zap.Bool("livekit_enabled", roomService != nil),
		zap.Bool("registry_enabled", registry != nil))

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// instanceID identifies this service instance, preferring the hostname (the
// pod name in Kubernetes).
func instanceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("voice-agent-%d", time.Now().UnixNano())
}
