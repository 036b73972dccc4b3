// Package voice defines the seams between the call lifecycle code and the
// external voice runtime. Speech recognition, synthesis and turn-taking live
// behind these interfaces; this service only drives them.
package voice

import "context"

// Participant is one endpoint in a room: the caller, or a telephony bridge leg.
type Participant struct {
	Identity   string
	Attributes map[string]string
	Metadata   string
	SIP        bool
}

// Session is the conversational voice runtime handle for one call.
type Session interface {
	// Speak asks the runtime to deliver an utterance. Implementations must
	// honor ctx cancellation; the caller bounds every Speak with a timeout.
	Speak(ctx context.Context, instructions string) error

	// HasCapability reports whether the runtime supports a named operation.
	HasCapability(name string) bool

	// InvokeCapability invokes a named operation on the runtime.
	InvokeCapability(ctx context.Context, name string) error
}

// Room is the conferencing layer hosting the call's media participants.
type Room interface {
	ListParticipants(ctx context.Context) ([]Participant, error)
	DisconnectParticipant(ctx context.Context, identity string) error
	Close(ctx context.Context) error
}

// Transport is the lower-level connection beneath a Session, on runtimes
// where the two are distinct objects.
type Transport interface {
	Close(ctx context.Context) error
}

// JobContext is the hosting job for a call, on runtimes that expose one.
type JobContext interface {
	Disconnect(ctx context.Context) error
}
