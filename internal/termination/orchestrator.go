// Package termination implements the call teardown cascade. The business
// requirement is that the call always ends: every stage isolates its own
// failures and the cascade always runs to completion, so callers can never
// distinguish a clean shutdown from a best-effort one except via logs.
package termination

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/upclosets/nova-voice-agent/internal/voice"
	"github.com/upclosets/nova-voice-agent/pkg/logger"
	"go.uber.org/zap"
)

// State is the orchestrator's position in the teardown sequence.
type State int32

const (
	StateIdle State = iota
	StateFarewellSent
	StateTeardownInProgress
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFarewellSent:
		return "farewell_sent"
	case StateTeardownInProgress:
		return "teardown_in_progress"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Participant attribute carrying the telephony provider's call identifier.
const twilioCallSIDAttribute = "sip.twilio.callSid"

// sipIdentityPrefix marks participants that entered through the telephone network.
const sipIdentityPrefix = "sip_"

// CallControl ends calls at the telephony provider.
type CallControl interface {
	Enabled() bool
	EndCall(ctx context.Context, callSID string) error
}

// Config carries the teardown timing knobs and the farewell utterance.
type Config struct {
	// GraceDelay lets in-flight audio finish before the farewell.
	GraceDelay time.Duration
	// FarewellTimeout bounds the farewell utterance itself.
	FarewellTimeout time.Duration
	// FarewellHoldoff lets the farewell be heard before the channel is cut.
	FarewellHoldoff time.Duration
	// StageTimeout bounds every external call made by a teardown stage.
	StageTimeout time.Duration
	Farewell     string
}

// Handles are the per-call teardown targets. Any of them may be nil; a stage
// with no target logs and moves on.
type Handles struct {
	Session     voice.Session
	Closer      *voice.SessionCloser
	Room        voice.Room
	Transport   voice.Transport
	Job         voice.JobContext
	CallControl CallControl

	// ClearSession drops the owning session's handle references once the
	// cascade finishes.
	ClearSession func()
}

// Orchestrator runs the teardown cascade for one call. Terminate is
// idempotent: concurrent invocations race on a single compare-and-set and the
// losers return immediately.
type Orchestrator struct {
	cfg     Config
	handles Handles
	log     *zap.Logger

	started *atomic.Bool
	state   atomic.Int32
	done    chan struct{}
}

// New builds an orchestrator for one call. started is the session's
// termination flag; it is shared so the session observes the transition.
func New(cfg Config, handles Handles, started *atomic.Bool, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = logger.Base()
	}
	return &Orchestrator{
		cfg:     cfg,
		handles: handles,
		log:     log,
		started: started,
		done:    make(chan struct{}),
	}
}

// State returns the orchestrator's current teardown state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Done is closed once the cascade has run to completion.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Terminate runs the teardown cascade. Exactly one caller wins the
// termination flag and performs the cascade; every other caller, concurrent
// or later, is a no-op. Terminate never returns an error: teardown is
// unconditionally best-effort and stage failures are only visible in logs.
func (o *Orchestrator) Terminate() {
	if !o.started.CompareAndSwap(false, true) {
		o.log.Debug("Termination already started, skipping")
		return
	}
	o.run()
}

func (o *Orchestrator) run() {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Termination cascade panicked", zap.Any("panic", r))
		}
		if o.handles.ClearSession != nil {
			o.handles.ClearSession()
		}
		o.state.Store(int32(StateTerminated))
		o.log.Info("Call termination sequence completed")
		close(o.done)
	}()

	o.log.Info("Starting call termination sequence")
	time.Sleep(o.cfg.GraceDelay)

	// Participants are snapshotted up front: the provider-level stage still
	// needs their attributes after the room itself has been torn down.
	participants := o.snapshotParticipants()

	o.sayFarewell()
	o.state.Store(int32(StateTeardownInProgress))

	o.disconnectParticipants(participants) // stage A
	o.closeRoom()                          // stage B
	o.shutdownSession()                    // stage C
	o.closeTransport()                     // stage D
	o.endProviderCalls(participants)       // stage E
	o.disconnectJob()                      // stage F
}

func (o *Orchestrator) snapshotParticipants() []voice.Participant {
	if o.handles.Room == nil {
		return nil
	}
	ctx, cancel := o.stageContext()
	defer cancel()

	participants, err := o.handles.Room.ListParticipants(ctx)
	if err != nil {
		o.log.Warn("Could not list room participants", zap.Error(err))
		return nil
	}
	return participants
}

func (o *Orchestrator) sayFarewell() {
	o.state.Store(int32(StateFarewellSent))
	if o.handles.Session == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FarewellTimeout)
	defer cancel()

	if err := o.handles.Session.Speak(ctx, o.cfg.Farewell); err != nil {
		// A missed farewell is not fatal; the caller just loses the goodbye.
		o.log.Warn("Could not send final goodbye", zap.Error(err))
		return
	}
	time.Sleep(o.cfg.FarewellHoldoff)
}

// disconnectParticipants is stage A: each participant's disconnect is
// attempted independently so one failure cannot abort the others.
func (o *Orchestrator) disconnectParticipants(participants []voice.Participant) {
	if o.handles.Room == nil {
		return
	}
	for _, p := range participants {
		ctx, cancel := o.stageContext()
		if err := o.handles.Room.DisconnectParticipant(ctx, p.Identity); err != nil {
			o.log.Warn("Failed to disconnect participant",
				zap.String("participant", p.Identity),
				zap.Error(err))
		}
		cancel()
	}
}

// closeRoom is stage B.
func (o *Orchestrator) closeRoom() {
	if o.handles.Room == nil {
		return
	}
	ctx, cancel := o.stageContext()
	defer cancel()

	if err := o.handles.Room.Close(ctx); err != nil {
		o.log.Warn("Failed to close room", zap.Error(err))
	}
}

// shutdownSession is stage C: the closer was bound to the runtime's shutdown
// capabilities when the session was constructed.
func (o *Orchestrator) shutdownSession() {
	if o.handles.Closer == nil {
		return
	}
	ctx, cancel := o.stageContext()
	defer cancel()

	if err := o.handles.Closer.Shutdown(ctx); err != nil {
		o.log.Warn("Voice session shutdown failed", zap.Error(err))
	}
}

// closeTransport is stage D: a fallback beneath stage C for runtimes whose
// connection object is distinct from the session.
func (o *Orchestrator) closeTransport() {
	if o.handles.Transport == nil {
		return
	}
	ctx, cancel := o.stageContext()
	defer cancel()

	if err := o.handles.Transport.Close(ctx); err != nil {
		o.log.Warn("Failed to close underlying transport", zap.Error(err))
	}
}

// endProviderCalls is stage E: participants that entered through the
// telephone network are ended at the provider directly.
func (o *Orchestrator) endProviderCalls(participants []voice.Participant) {
	if o.handles.CallControl == nil {
		return
	}
	if !o.handles.CallControl.Enabled() {
		o.log.Warn("Telephony credentials missing, skipping provider-level teardown")
		return
	}
	for _, p := range participants {
		if !isSIPParticipant(p) {
			continue
		}
		callSID := p.Attributes[twilioCallSIDAttribute]
		if callSID == "" {
			continue
		}

		o.log.Info("Ending provider call", zap.String("call_sid", callSID))
		ctx, cancel := o.stageContext()
		if err := o.handles.CallControl.EndCall(ctx, callSID); err != nil {
			o.log.Warn("Provider call termination failed",
				zap.String("call_sid", callSID),
				zap.Error(err))
		}
		cancel()
	}
}

// disconnectJob is stage F.
func (o *Orchestrator) disconnectJob() {
	if o.handles.Job == nil {
		return
	}
	ctx, cancel := o.stageContext()
	defer cancel()

	if err := o.handles.Job.Disconnect(ctx); err != nil {
		o.log.Warn("Failed to disconnect job context", zap.Error(err))
	}
}

func (o *Orchestrator) stageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.cfg.StageTimeout)
}

func isSIPParticipant(p voice.Participant) bool {
	return p.SIP || strings.HasPrefix(p.Identity, sipIdentityPrefix)
}
