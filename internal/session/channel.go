package session

import (
	"context"

	"weblast/internal/media"
)

type EventKind int

const (
	// EventPairing carries a pairing code for a human to scan.
	EventPairing EventKind = iota
	// EventReady means the session can validate numbers and send.
	EventReady
	// EventFailure carries an unrecoverable session error.
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventPairing:
		return "pairing"
	case EventReady:
		return "ready"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Code string
	Err  error
}

// Channel is one live session on the external messaging network.
//
// Initialize starts the session and returns its event stream. Emitters
// must not block on the stream and should close it on Destroy.
type Channel interface {
	Initialize(ctx context.Context) (<-chan Event, error)
	// NumberID returns the channel address for a digits-only phone, or ""
	// when the number is not registered.
	NumberID(ctx context.Context, phone string) (string, error)
	SendText(ctx context.Context, address, body string) error
	SendAttachment(ctx context.Context, address string, att *media.Attachment) error
	Destroy(ctx context.Context) error
}

// Factory opens a fresh Channel for a blast run. Runs never share one.
type Factory func(runID string) (Channel, error)
