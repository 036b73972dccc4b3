// Package session owns the lifecycle of one phone call: identity resolution
// on connect, the booking tool during the conversation, and the handoff to
// the termination cascade once a booking is confirmed.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upclosets/nova-voice-agent/internal/domain"
	"github.com/upclosets/nova-voice-agent/internal/scheduler"
	"github.com/upclosets/nova-voice-agent/internal/termination"
	"github.com/upclosets/nova-voice-agent/internal/voice"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// State is the call session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateScheduling
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateScheduling:
		return "scheduling"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity resolution sources, in priority order.
const (
	sipIdentityPrefix = "sip_"
	sipPhoneAttribute = "sip.phoneNumber"
)

// DefaultFarewell is spoken before the channel is cut.
const DefaultFarewell = "Say: Thank you for choosing Up Closets of NOVA! Goodbye!"

// Config carries the per-call timing knobs.
type Config struct {
	// IdentitySettleDelay lets participant metadata populate before the
	// caller identity is read.
	IdentitySettleDelay time.Duration
	GraceDelay          time.Duration
	FarewellTimeout     time.Duration
	FarewellHoldoff     time.Duration
	StageTimeout        time.Duration
	Farewell            string
}

// Handles wires a session to its collaborators. Only Room is required for
// identity resolution; everything else degrades to a skipped teardown stage.
type Handles struct {
	Voice       voice.Session
	Room        voice.Room
	Transport   voice.Transport
	Job         voice.JobContext
	CallControl termination.CallControl
}

// CallSession is the state for one phone call. It is created on connect,
// lives for the call's duration and is discarded after termination.
type CallSession struct {
	id       string
	roomName string
	cfg      Config
	log      *zap.Logger

	// mu guards voiceSession, room and callerPhone: Connect still reads the
	// room handle while the termination cascade may already be clearing it.
	mu           sync.RWMutex
	voiceSession voice.Session
	room         voice.Room
	callerPhone  string

	scheduler *scheduler.ConsultationScheduler
	registry  *Registry
	orch      *termination.Orchestrator

	bookingConfirmed   atomic.Bool
	terminationStarted atomic.Bool
	state              atomic.Int32

	// bookingMu serializes booking attempts from the conversation layer so
	// the at-most-one check and the insert are not interleaved.
	bookingMu sync.Mutex

	superviseOnce sync.Once
	closed        chan struct{}
	onClosed      func(*CallSession)
}

// New creates a session for one call. The shutdown capabilities of the voice
// runtime are probed here, once, and bound into the termination cascade.
func New(roomName string, cfg Config, handles Handles, sched *scheduler.ConsultationScheduler, registry *Registry, onClosed func(*CallSession)) *CallSession {
	if cfg.Farewell == "" {
		cfg.Farewell = DefaultFarewell
	}

	cs := &CallSession{
		id:           uuid.NewString(),
		roomName:     roomName,
		cfg:          cfg,
		log:          logger.Base().With(zap.String("room", roomName)),
		voiceSession: handles.Voice,
		room:         handles.Room,
		scheduler:    sched,
		registry:     registry,
		closed:       make(chan struct{}),
		onClosed:     onClosed,
	}

	cs.orch = termination.New(
		termination.Config{
			GraceDelay:      cfg.GraceDelay,
			FarewellTimeout: cfg.FarewellTimeout,
			FarewellHoldoff: cfg.FarewellHoldoff,
			StageTimeout:    cfg.StageTimeout,
			Farewell:        cfg.Farewell,
		},
		termination.Handles{
			Session:      handles.Voice,
			Closer:       voice.NewSessionCloser(handles.Voice),
			Room:         handles.Room,
			Transport:    handles.Transport,
			Job:          handles.Job,
			CallControl:  handles.CallControl,
			ClearSession: cs.clearHandles,
		},
		&cs.terminationStarted,
		cs.log,
	)

	return cs
}

// SessionID identifies this call.
func (cs *CallSession) SessionID() string { return cs.id }

// RoomName is the conference room hosting this call.
func (cs *CallSession) RoomName() string { return cs.roomName }

// State returns the session's lifecycle state.
func (cs *CallSession) State() State { return State(cs.state.Load()) }

// CallerPhone returns the identity resolved at connect time. Before Connect
// completes it is empty; after, it is either a phone number or the
// extraction-failed sentinel, never empty.
func (cs *CallSession) CallerPhone() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.callerPhone
}

// AlreadyBooked reports whether this call has a confirmed booking.
func (cs *CallSession) AlreadyBooked() bool { return cs.bookingConfirmed.Load() }

// TryConfirmBooking flips the booking flag, once per call.
func (cs *CallSession) TryConfirmBooking() bool {
	return cs.bookingConfirmed.CompareAndSwap(false, true)
}

// Closed is closed once the termination cascade has completed and the
// session has been unregistered.
func (cs *CallSession) Closed() <-chan struct{} { return cs.closed }

// TerminationState exposes the teardown progress for supervision and tests.
func (cs *CallSession) TerminationState() termination.State { return cs.orch.State() }

// Connect resolves the caller identity and activates the session. The settle
// delay gives the room time to populate participant metadata.
func (cs *CallSession) Connect(ctx context.Context) {
	select {
	case <-time.After(cs.cfg.IdentitySettleDelay):
	case <-ctx.Done():
	}

	phone := cs.resolveCallerIdentity(ctx)
	cs.mu.Lock()
	cs.callerPhone = phone
	cs.mu.Unlock()

	if phone == domain.CallerPhoneExtractionFailed {
		cs.log.Warn("Caller phone extraction failed")
	} else {
		cs.log.Info("Caller identity resolved", zap.String("caller_phone", phone))
	}

	if cs.registry != nil {
		if err := cs.registry.Register(ctx, Info{
			SessionID:   cs.id,
			RoomName:    cs.roomName,
			CallerPhone: phone,
		}); err != nil {
			cs.log.Warn("Failed to register session", zap.Error(err))
		}
	}

	// Termination may already have started while identity was resolving; only
	// a still-connecting session becomes active.
	cs.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// resolveCallerIdentity inspects participants in a fixed priority order:
// telephone-format identity prefix, then SIP phone attribute, then call
// metadata.
func (cs *CallSession) resolveCallerIdentity(ctx context.Context) string {
	cs.mu.RLock()
	room := cs.room
	cs.mu.RUnlock()
	if room == nil {
		return domain.CallerPhoneExtractionFailed
	}

	participants, err := room.ListParticipants(ctx)
	if err != nil {
		cs.log.Warn("Could not list participants for identity resolution", zap.Error(err))
		return domain.CallerPhoneExtractionFailed
	}

	for _, p := range participants {
		if strings.HasPrefix(p.Identity, sipIdentityPrefix) {
			phone := strings.TrimPrefix(p.Identity, sipIdentityPrefix)
			if strings.HasPrefix(phone, "+") {
				return phone
			}
		}
	}

	for _, p := range participants {
		if phone := p.Attributes[sipPhoneAttribute]; phone != "" {
			return phone
		}
	}

	for _, p := range participants {
		if phone := phoneFromMetadata(p.Metadata); phone != "" {
			return phone
		}
	}

	return domain.CallerPhoneExtractionFailed
}

func phoneFromMetadata(metadata string) string {
	if metadata == "" {
		return ""
	}
	var fields struct {
		PhoneNumber string `json:"phoneNumber"`
		From        string `json:"from"`
	}
	if err := json.Unmarshal([]byte(metadata), &fields); err != nil {
		return ""
	}
	if fields.PhoneNumber != "" {
		return fields.PhoneNumber
	}
	return fields.From
}

// ScheduleConsultation is the booking tool exposed to the conversation layer.
func (cs *CallSession) ScheduleConsultation(ctx context.Context, req domain.BookingRequest) scheduler.Outcome {
	cs.bookingMu.Lock()
	defer cs.bookingMu.Unlock()

	if State(cs.state.Load()) == StateActive {
		cs.state.Store(int32(StateScheduling))
	}

	outcome := cs.scheduler.Schedule(ctx, cs, req)

	// On success BeginTermination has already moved the state on; on
	// rejection the conversation continues.
	if !outcome.Scheduled && State(cs.state.Load()) == StateScheduling {
		cs.state.Store(int32(StateActive))
	}
	return outcome
}

// BeginTermination launches the teardown cascade in the background and
// supervises it: the supervisor waits for the cascade and logs its outcome.
// Safe to call from multiple paths; the cascade runs once.
func (cs *CallSession) BeginTermination() {
	cs.superviseOnce.Do(func() {
		// Only the first caller moves the state; a late webhook after the
		// session closed must not drag it back to Terminating.
		cs.state.Store(int32(StateTerminating))
		go cs.orch.Terminate()
		go cs.supervise()
	})
}

func (cs *CallSession) supervise() {
	<-cs.orch.Done()

	if cs.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cs.registry.Unregister(ctx, cs.id); err != nil {
			cs.log.Warn("Failed to unregister session", zap.Error(err))
		}
		if err := cs.registry.NotifyCleanup(ctx, cs.id); err != nil {
			cs.log.Warn("Failed to broadcast session cleanup", zap.Error(err))
		}
		cancel()
	}

	cs.state.Store(int32(StateClosed))
	cs.log.Info("Call session closed",
		zap.String("session_id", cs.id),
		zap.Bool("booking_confirmed", cs.bookingConfirmed.Load()),
		zap.String("termination_state", cs.orch.State().String()))

	if cs.onClosed != nil {
		cs.onClosed(cs)
	}
	close(cs.closed)
}

// clearHandles drops the session's runtime references once the cascade is
// done with them.
func (cs *CallSession) clearHandles() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.voiceSession = nil
	cs.room = nil
}
