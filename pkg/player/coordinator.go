package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/queue"
	"github.com/latoulicious/Ongaku/pkg/track"
)

var (
	// ErrNothingPlaying is returned by controls that need an active track.
	ErrNothingPlaying = errors.New("nothing is playing")
	// ErrNoTracks is returned by a play request with an empty track list.
	ErrNoTracks = errors.New("no tracks to play")
)

// Queue is the subset of the queue store the coordinator drives.
type Queue interface {
	Enqueue(ctx context.Context, chatID int64, trk track.Track) error
	DequeueNext(ctx context.Context, chatID int64) (track.Track, bool, error)
	Peek(ctx context.Context, chatID int64, limit int) ([]track.Track, error)
	Clear(ctx context.Context, chatID int64) (int, error)
	Shuffle(ctx context.Context, chatID int64) bool
	Len(ctx context.Context, chatID int64) int
}

// Session is the stream session surface the coordinator drives.
type Session interface {
	Start(ctx context.Context, chatID int64, trk track.Track) error
	Pause(ctx context.Context, chatID int64) error
	Resume(ctx context.Context, chatID int64) error
	Stop(ctx context.Context, chatID int64) error
}

// PlayResult reports what a play request did: started playback, queued
// behind the current track, or resumed a paused one.
type PlayResult struct {
	Started *track.Track
	Queued  int
	Resumed bool
}

// Coordinator owns the per-chat playback state machine: idle, playing and
// paused, with loop modes applied when a track finishes. Transitions for
// one chat are serialized by that chat's own lock; the coordinator-wide
// lock guards only the state table, so slow transport calls for one chat
// never block another.
type Coordinator struct {
	queue   Queue
	session Session
	logger  *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chatState
}

func NewCoordinator(q Queue, s Session, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		queue:   q,
		session: s,
		logger:  logger,
		chats:   make(map[int64]*chatState),
	}
}

func (c *Coordinator) chat(chatID int64) *chatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.chats[chatID]
	if !ok {
		cs = &chatState{}
		c.chats[chatID] = cs
	}
	return cs
}

// RequestPlay handles a user's play request. When the chat is paused and
// the request names exactly the paused track, it resumes instead of
// queueing a duplicate. When idle, the first track starts immediately and
// the rest are queued. When playing, everything is queued. A full queue
// stops the request at the first rejected track.
func (c *Coordinator) RequestPlay(ctx context.Context, chatID int64, tracks []track.Track) (PlayResult, error) {
	if len(tracks) == 0 {
		return PlayResult{}, ErrNoTracks
	}

	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.state == StatePaused && len(tracks) == 1 && tracks[0].StreamURL == cs.current.StreamURL {
		if err := c.session.Resume(ctx, chatID); err != nil {
			return PlayResult{}, err
		}
		cs.state = StatePlaying
		c.logger.Info("resumed via play request", zap.Int64("chat_id", chatID))
		return PlayResult{Resumed: true}, nil
	}

	result := PlayResult{}
	remaining := tracks

	if cs.state == StateIdle {
		first := remaining[0]
		if err := c.session.Start(ctx, chatID, first); err != nil {
			return PlayResult{}, fmt.Errorf("start playback: %w", err)
		}
		cs.state = StatePlaying
		cs.current = first
		result.Started = &first
		remaining = remaining[1:]
		c.logger.Info("playback started",
			zap.Int64("chat_id", chatID), zap.String("title", first.Title))
	}

	for _, trk := range remaining {
		if err := c.queue.Enqueue(ctx, chatID, trk); err != nil {
			if errors.Is(err, queue.ErrQueueFull) {
				return result, fmt.Errorf("queued %d of %d: %w",
					result.Queued, len(remaining), err)
			}
			return result, err
		}
		result.Queued++
	}
	return result, nil
}

// Advance moves the chat to its next track after the current one finishes,
// applying the loop mode first. With no next track the session stops and
// the chat goes idle. It reports the new current track, if any.
func (c *Coordinator) Advance(ctx context.Context, chatID int64) (track.Track, bool, error) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return c.advanceLocked(ctx, chatID, cs, false)
}

// Skip abandons the current track and moves on. A track loop does not
// hold a skipped track; a queue loop still recycles it to the tail.
func (c *Coordinator) Skip(ctx context.Context, chatID int64) (track.Track, bool, error) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.state == StateIdle {
		return track.Track{}, false, ErrNothingPlaying
	}
	return c.advanceLocked(ctx, chatID, cs, true)
}

func (c *Coordinator) advanceLocked(ctx context.Context, chatID int64, cs *chatState, skipped bool) (track.Track, bool, error) {
	if cs.state == StateIdle {
		return track.Track{}, false, nil
	}
	finished := cs.current

	if cs.loop.kind == LoopTrack && !skipped {
		cs.loop.remaining--
		if cs.loop.remaining <= 0 {
			cs.loop = loopState{}
		}
		if err := c.session.Start(ctx, chatID, finished); err != nil {
			cs.reset()
			return track.Track{}, false, err
		}
		cs.state = StatePlaying
		return finished, true, nil
	}

	if cs.loop.kind == LoopQueue {
		// The finished track rejoins at the tail. A full queue drops it
		// rather than stalling playback.
		if err := c.queue.Enqueue(ctx, chatID, finished); err != nil {
			c.logger.Warn("queue loop could not recycle track",
				zap.Int64("chat_id", chatID),
				zap.String("title", finished.Title),
				zap.Error(err))
		}
	}

	next, ok, err := c.queue.DequeueNext(ctx, chatID)
	if err != nil {
		return track.Track{}, false, err
	}
	if !ok {
		if err := c.session.Stop(ctx, chatID); err != nil {
			c.logger.Warn("stop after queue drained",
				zap.Int64("chat_id", chatID), zap.Error(err))
		}
		cs.reset()
		c.logger.Info("queue drained, going idle", zap.Int64("chat_id", chatID))
		return track.Track{}, false, nil
	}

	if err := c.session.Start(ctx, chatID, next); err != nil {
		// The chat must not claim a stream that is not running; whoever
		// drives health checks sees the surfaced error.
		cs.reset()
		return track.Track{}, false, err
	}
	cs.state = StatePlaying
	cs.current = next
	return next, true, nil
}

// Pause suspends playback. Pausing an already paused chat is a no-op.
func (c *Coordinator) Pause(ctx context.Context, chatID int64) error {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	switch cs.state {
	case StateIdle:
		return ErrNothingPlaying
	case StatePaused:
		return nil
	}
	if err := c.session.Pause(ctx, chatID); err != nil {
		return err
	}
	cs.state = StatePaused
	return nil
}

// Resume continues paused playback. Resuming a playing chat is a no-op.
func (c *Coordinator) Resume(ctx context.Context, chatID int64) error {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	switch cs.state {
	case StateIdle:
		return ErrNothingPlaying
	case StatePlaying:
		return nil
	}
	if err := c.session.Resume(ctx, chatID); err != nil {
		return err
	}
	cs.state = StatePlaying
	return nil
}

// Stop ends playback, clears the queue and any loop, and idles the chat.
// Safe to call on an idle chat.
func (c *Coordinator) Stop(ctx context.Context, chatID int64) error {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := c.queue.Clear(ctx, chatID); err != nil {
		c.logger.Warn("clear queue on stop",
			zap.Int64("chat_id", chatID), zap.Error(err))
	}
	var stopErr error
	if cs.state != StateIdle {
		stopErr = c.session.Stop(ctx, chatID)
	}
	cs.reset()
	return stopErr
}

// SetLoop arms a loop mode. For track loops count is the number of extra
// plays and defaults to 1 when non-positive; queue loops ignore count and
// cycle until cleared.
func (c *Coordinator) SetLoop(chatID int64, kind LoopKind, count int) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if kind == LoopNone {
		cs.loop = loopState{}
		return
	}
	if kind == LoopTrack && count <= 0 {
		count = 1
	}
	cs.loop = loopState{kind: kind, remaining: count}
	c.logger.Info("loop set",
		zap.Int64("chat_id", chatID),
		zap.String("kind", kind.String()),
		zap.Int("count", count))
}

// ClearLoop disarms any loop mode.
func (c *Coordinator) ClearLoop(chatID int64) {
	c.SetLoop(chatID, LoopNone, 0)
}

// Loop reports the chat's armed loop mode and, for track loops, the plays
// left.
func (c *Coordinator) Loop(chatID int64) (LoopKind, int) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.loop.kind, cs.loop.remaining
}

// NowPlaying reports the chat's state and current track. The track is
// meaningful only when the state is not idle.
func (c *Coordinator) NowPlaying(chatID int64) (track.Track, State) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.current, cs.state
}

// NoteMessage remembers a status message the bot posted in the chat so
// stale ones can be cleaned up later. Only the most recent few are kept.
func (c *Coordinator) NoteMessage(chatID, messageID int64) {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.noteMessage(messageID)
}

// RecentMessages returns the remembered status message ids, oldest first.
func (c *Coordinator) RecentMessages(chatID int64) []int64 {
	cs := c.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]int64, len(cs.recent))
	copy(out, cs.recent)
	return out
}
