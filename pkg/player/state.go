package player

import (
	"sync"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// State is a chat's playback lifecycle position.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// LoopKind selects what repeats when the current track finishes.
type LoopKind int

const (
	LoopNone LoopKind = iota
	// LoopTrack restarts the finished track until the repeat count runs out.
	LoopTrack
	// LoopQueue re-enqueues the finished track at the tail so the whole
	// queue cycles until the loop is cleared.
	LoopQueue
)

func (k LoopKind) String() string {
	switch k {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

type loopState struct {
	kind LoopKind
	// remaining applies to track loops only; queue loops cycle until
	// cleared.
	remaining int
}

// maxRecentMessages bounds the per-chat status message history used for
// chat cleanup.
const maxRecentMessages = 5

// chatState carries one chat's playback position. Its mutex serializes
// transitions for that chat only; other chats never contend on it.
type chatState struct {
	mu      sync.Mutex
	state   State
	current track.Track
	loop    loopState
	recent  []int64
}

// reset returns the chat to idle, keeping only the message history.
func (c *chatState) reset() {
	c.state = StateIdle
	c.current = track.Track{}
	c.loop = loopState{}
}

func (c *chatState) noteMessage(messageID int64) {
	c.recent = append(c.recent, messageID)
	if len(c.recent) > maxRecentMessages {
		c.recent = c.recent[len(c.recent)-maxRecentMessages:]
	}
}
