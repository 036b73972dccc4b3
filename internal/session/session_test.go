package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upclosets/nova-voice-agent/internal/domain"
	"github.com/upclosets/nova-voice-agent/internal/scheduler"
	"github.com/upclosets/nova-voice-agent/internal/termination"
	"github.com/upclosets/nova-voice-agent/internal/voice"
)

type fakeRoom struct {
	mu           sync.Mutex
	participants []voice.Participant
	listErr      error
	listDelay    time.Duration
	closes       int
	disconnects  []string
}

func (f *fakeRoom) ListParticipants(ctx context.Context) ([]voice.Participant, error) {
	if f.listDelay > 0 {
		select {
		case <-time.After(f.listDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.participants, nil
}

func (f *fakeRoom) DisconnectParticipant(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, identity)
	return nil
}

func (f *fakeRoom) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeRoom) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeConsultationStore struct {
	mu      sync.Mutex
	inserts []*domain.Consultation
	err     error
}

func (f *fakeConsultationStore) Insert(ctx context.Context, c *domain.Consultation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.inserts = append(f.inserts, c)
	return "rec-1", nil
}

func (f *fakeConsultationStore) InsertPending(ctx context.Context, c *domain.Consultation) (string, error) {
	return f.Insert(ctx, c)
}

func (f *fakeConsultationStore) Confirm(ctx context.Context, id string) error { return nil }

func (f *fakeConsultationStore) FindByPhone(ctx context.Context, phone string) (*domain.Consultation, error) {
	return nil, nil
}

func (f *fakeConsultationStore) ListRecent(ctx context.Context, limit int64) ([]domain.Consultation, error) {
	return nil, nil
}

func fastSessionConfig() Config {
	return Config{
		IdentitySettleDelay: time.Millisecond,
		GraceDelay:          time.Millisecond,
		FarewellTimeout:     20 * time.Millisecond,
		FarewellHoldoff:     time.Millisecond,
		StageTimeout:        20 * time.Millisecond,
	}
}

func newTestSession(room voice.Room, cc termination.CallControl, store *fakeConsultationStore, onClosed func(*CallSession)) *CallSession {
	return New("room-1", fastSessionConfig(), Handles{Room: room, CallControl: cc}, scheduler.New(store), nil, onClosed)
}

func awaitClosed(t *testing.T, cs *CallSession) {
	t.Helper()
	select {
	case <-cs.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestConnectResolvesIdentityFromSIPPrefix(t *testing.T) {
	room := &fakeRoom{participants: []voice.Participant{
		{Identity: "agent-bot"},
		{Identity: "sip_+15551234567", SIP: true},
	}}
	cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)

	cs.Connect(context.Background())

	assert.Equal(t, "+15551234567", cs.CallerPhone())
	assert.Equal(t, StateActive, cs.State())
}

func TestConnectFallsBackToSIPAttribute(t *testing.T) {
	room := &fakeRoom{participants: []voice.Participant{
		{Identity: "sip_abc123", Attributes: map[string]string{"sip.phoneNumber": "+15559876543"}},
	}}
	cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)

	cs.Connect(context.Background())

	assert.Equal(t, "+15559876543", cs.CallerPhone())
}

func TestConnectFallsBackToMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		want     string
	}{
		{"phoneNumber field", `{"phoneNumber":"+15550001111"}`, "+15550001111"},
		{"from field", `{"from":"+15550002222"}`, "+15550002222"},
		{"malformed json is skipped", `{not json`, domain.CallerPhoneExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := &fakeRoom{participants: []voice.Participant{
				{Identity: "caller", Metadata: tt.metadata},
			}}
			cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)

			cs.Connect(context.Background())

			assert.Equal(t, tt.want, cs.CallerPhone())
		})
	}
}

func TestConnectUsesSentinelWhenResolutionFails(t *testing.T) {
	t.Run("no room handle", func(t *testing.T) {
		cs := newTestSession(nil, nil, &fakeConsultationStore{}, nil)
		cs.Connect(context.Background())
		assert.Equal(t, domain.CallerPhoneExtractionFailed, cs.CallerPhone())
	})

	t.Run("listing fails", func(t *testing.T) {
		room := &fakeRoom{listErr: errors.New("room gone")}
		cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)
		cs.Connect(context.Background())
		assert.Equal(t, domain.CallerPhoneExtractionFailed, cs.CallerPhone())
	})

	// The session stays usable; booking falls back to a synthetic phone.
	t.Run("session still active", func(t *testing.T) {
		cs := newTestSession(nil, nil, &fakeConsultationStore{}, nil)
		cs.Connect(context.Background())
		assert.Equal(t, StateActive, cs.State())
	})
}

func TestBookingConfirmationTriggersTermination(t *testing.T) {
	room := &fakeRoom{participants: []voice.Participant{
		{Identity: "sip_+15551234567", SIP: true},
	}}
	store := &fakeConsultationStore{}

	var closedMu sync.Mutex
	closedWith := []*CallSession{}
	cs := newTestSession(room, nil, store, func(c *CallSession) {
		closedMu.Lock()
		defer closedMu.Unlock()
		closedWith = append(closedWith, c)
	})

	cs.Connect(context.Background())

	outcome := cs.ScheduleConsultation(context.Background(), domain.BookingRequest{
		ClosetType:    "reach-in",
		Phone:         "+15550001111",
		PreferredDate: "2024-03-01",
	})
	require.True(t, outcome.Scheduled)
	assert.True(t, cs.AlreadyBooked())

	awaitClosed(t, cs)

	assert.Equal(t, StateClosed, cs.State())
	assert.Equal(t, termination.StateTerminated, cs.TerminationState())
	assert.Equal(t, 1, room.closeCount())
	require.Len(t, store.inserts, 1)
	assert.Equal(t, "+15550001111", store.inserts[0].Phone)

	closedMu.Lock()
	defer closedMu.Unlock()
	require.Len(t, closedWith, 1)
	assert.Same(t, cs, closedWith[0])
}

func TestSecondBookingRejectedAfterConfirmation(t *testing.T) {
	store := &fakeConsultationStore{}
	cs := newTestSession(&fakeRoom{}, nil, store, nil)
	cs.Connect(context.Background())

	first := cs.ScheduleConsultation(context.Background(), domain.BookingRequest{Phone: "+15550000001"})
	require.True(t, first.Scheduled)

	second := cs.ScheduleConsultation(context.Background(), domain.BookingRequest{Phone: "+15550000002"})
	assert.False(t, second.Scheduled)

	awaitClosed(t, cs)
	assert.Len(t, store.inserts, 1)
}

func TestStorageFailureKeepsSessionActive(t *testing.T) {
	store := &fakeConsultationStore{err: errors.New("insert failed")}
	cs := newTestSession(&fakeRoom{}, nil, store, nil)
	cs.Connect(context.Background())

	outcome := cs.ScheduleConsultation(context.Background(), domain.BookingRequest{Phone: "+15550000001"})

	assert.False(t, outcome.Scheduled)
	assert.False(t, cs.AlreadyBooked())
	assert.Equal(t, StateActive, cs.State())
	assert.Equal(t, termination.StateIdle, cs.TerminationState())
}

func TestBeginTerminationIsIdempotent(t *testing.T) {
	room := &fakeRoom{participants: []voice.Participant{
		{Identity: "sip_+15551234567", SIP: true},
	}}
	cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)
	cs.Connect(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cs.BeginTermination()
		}()
	}
	wg.Wait()

	awaitClosed(t, cs)
	assert.Equal(t, 1, room.closeCount())
	assert.Equal(t, StateClosed, cs.State())
}

// The caller can hang up while Connect is still resolving identity, so the
// teardown cascade's handle clearing overlaps the room reads. Run under the
// race detector.
func TestConnectConcurrentWithTermination(t *testing.T) {
	for i := 0; i < 25; i++ {
		room := &fakeRoom{
			participants: []voice.Participant{{Identity: "sip_+15551234567", SIP: true}},
			listDelay:    time.Millisecond,
		}
		cs := newTestSession(room, nil, &fakeConsultationStore{}, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			cs.Connect(context.Background())
		}()
		go func() {
			defer wg.Done()
			cs.BeginTermination()
		}()
		wg.Wait()

		awaitClosed(t, cs)
		// Whatever the interleaving, the resolved identity is readable.
		_ = cs.CallerPhone()
		assert.Equal(t, StateClosed, cs.State())
	}
}

func TestLateTerminationEventLeavesSessionClosed(t *testing.T) {
	cs := newTestSession(&fakeRoom{}, nil, &fakeConsultationStore{}, nil)
	cs.Connect(context.Background())

	cs.BeginTermination()
	awaitClosed(t, cs)
	require.Equal(t, StateClosed, cs.State())

	// A webhook retry arriving after close must not move the state backwards.
	cs.BeginTermination()
	assert.Equal(t, StateClosed, cs.State())
}

func TestTryConfirmBookingFlipsOnce(t *testing.T) {
	cs := newTestSession(&fakeRoom{}, nil, &fakeConsultationStore{}, nil)

	wins := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cs.TryConfirmBooking() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, cs.AlreadyBooked())
}
