package voice

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// Source is what the transport plays: either a direct URL or an open
// stream of raw frames (the transcode pipe's output).
type Source struct {
	URL    string
	Reader io.Reader
	Kind   track.MediaKind
}

// Transport is the group-call streaming collaborator. Implementations live
// outside the core; only the call binding may use Join/Leave/ProbeLiveness
// and only the stream session may use Play/Pause/Resume/Stop.
type Transport interface {
	Join(ctx context.Context, chatID int64) error
	Leave(ctx context.Context, chatID int64) error
	Play(ctx context.Context, chatID int64, src Source) error
	Pause(ctx context.Context, chatID int64) error
	Resume(ctx context.Context, chatID int64) error
	Stop(ctx context.Context, chatID int64) error
	ProbeLiveness(ctx context.Context, chatID int64) (bool, error)
}

// TransportError wraps a failed transport call with a stable operation
// name so callers can report a reason without parsing messages.
type TransportError struct {
	Op     string
	ChatID int64
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed for chat %d: %v", e.Op, e.ChatID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, chatID int64, err error) *TransportError {
	return &TransportError{Op: op, ChatID: chatID, Err: err}
}

// normalizeJoin treats "already joined" shaped transport errors as
// success; the desired state already holds.
func normalizeJoin(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already joined") || strings.Contains(msg, "already in call") {
		return nil
	}
	return err
}

// normalizeLeave treats "not in call" shaped transport errors as success.
func normalizeLeave(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not in call") || strings.Contains(msg, "not joined") ||
		strings.Contains(msg, "no active call") {
		return nil
	}
	return err
}
