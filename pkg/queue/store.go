package queue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// ErrQueueFull is returned when a chat's queue has reached its configured
// maximum. The queue is left unchanged.
var ErrQueueFull = errors.New("queue is full")

// DefaultMaxSize caps the number of pending tracks per chat.
const DefaultMaxSize = 50

// Backing is the durable overflow store behind the in-memory queue. It
// preserves queued-but-not-playing tracks across process restarts; it is
// never the primary path while an in-memory entry exists.
type Backing interface {
	Append(ctx context.Context, chatID int64, t track.Track, enqueuedAt time.Time) error
	PopOldest(ctx context.Context, chatID int64) (track.Track, bool, error)
	Oldest(ctx context.Context, chatID int64, limit int) ([]track.Track, error)
	Clear(ctx context.Context, chatID int64) (int, error)
}

// Store manages the per-chat pending track queues. Mutations on one chat's
// queue are mutually exclusive; different chats never block each other.
type Store struct {
	maxSize int
	backing Backing
	logger  *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chatQueue
}

type chatQueue struct {
	mu       sync.Mutex
	items    []track.Track
	restored bool
}

// NewStore creates a queue store. maxSize <= 0 selects DefaultMaxSize.
func NewStore(backing Backing, maxSize int, logger *zap.Logger) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		maxSize: maxSize,
		backing: backing,
		logger:  logger,
		chats:   make(map[int64]*chatQueue),
	}
}

func (s *Store) chat(chatID int64) *chatQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	cq, ok := s.chats[chatID]
	if !ok {
		cq = &chatQueue{}
		s.chats[chatID] = cq
	}
	return cq
}

// restore pulls any entries that exist only in the backing store into
// memory. Called once per chat under the chat lock, so a restart does not
// reorder or drop tracks that never reached memory.
func (s *Store) restore(ctx context.Context, cq *chatQueue, chatID int64) {
	if cq.restored {
		return
	}
	cq.restored = true
	for {
		t, ok, err := s.backing.PopOldest(ctx, chatID)
		if err != nil {
			s.logger.Warn("queue restore from backing failed",
				zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
		if !ok {
			break
		}
		cq.items = append(cq.items, t)
	}
	// Re-append so the backing store keeps mirroring the full queue.
	for _, t := range cq.items {
		if err := s.backing.Append(ctx, chatID, t, time.Now()); err != nil {
			s.logger.Warn("queue re-append to backing failed",
				zap.Int64("chat_id", chatID), zap.Error(err))
			return
		}
	}
}

// Enqueue appends a track to the chat's queue. Returns ErrQueueFull at
// capacity; the track is also mirrored to the durable backing so a restart
// does not lose it.
func (s *Store) Enqueue(ctx context.Context, chatID int64, t track.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)

	if len(cq.items) >= s.maxSize {
		return ErrQueueFull
	}
	cq.items = append(cq.items, t)
	if err := s.backing.Append(ctx, chatID, t, time.Now()); err != nil {
		// Memory stays authoritative; the entry just loses durability.
		s.logger.Warn("queue backing append failed",
			zap.Int64("chat_id", chatID), zap.String("title", t.Title), zap.Error(err))
	}
	return nil
}

// DequeueNext pops the oldest pending track: memory first, then the durable
// backing. Consumed entries are deleted from the backing immediately.
func (s *Store) DequeueNext(ctx context.Context, chatID int64) (track.Track, bool, error) {
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)

	if len(cq.items) > 0 {
		t := cq.items[0]
		cq.items = cq.items[1:]
		if _, _, err := s.backing.PopOldest(ctx, chatID); err != nil {
			s.logger.Warn("queue backing consume failed",
				zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return t, true, nil
	}

	// Nothing in memory; the backing store may still hold entries written
	// by an earlier process.
	t, ok, err := s.backing.PopOldest(ctx, chatID)
	if err != nil {
		return track.Track{}, false, err
	}
	return t, ok, nil
}

// Peek returns up to limit pending tracks in play order without consuming
// them.
func (s *Store) Peek(ctx context.Context, chatID int64, limit int) ([]track.Track, error) {
	if limit <= 0 {
		return nil, nil
	}
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)

	if len(cq.items) > 0 {
		n := limit
		if n > len(cq.items) {
			n = len(cq.items)
		}
		out := make([]track.Track, n)
		copy(out, cq.items[:n])
		return out, nil
	}
	return s.backing.Oldest(ctx, chatID, limit)
}

// Clear empties both memory and the durable backing, returning the number
// of entries removed.
func (s *Store) Clear(ctx context.Context, chatID int64) (int, error) {
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)

	removed := len(cq.items)
	cq.items = nil
	backed, err := s.backing.Clear(ctx, chatID)
	if err != nil {
		return removed, err
	}
	if backed > removed {
		removed = backed
	}
	return removed, nil
}

// Shuffle randomizes the in-memory order only. Returns false (not an
// error) when the queue is empty.
func (s *Store) Shuffle(ctx context.Context, chatID int64) bool {
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)

	if len(cq.items) < 2 {
		return len(cq.items) == 1
	}
	rand.Shuffle(len(cq.items), func(i, j int) {
		cq.items[i], cq.items[j] = cq.items[j], cq.items[i]
	})
	return true
}

// Len reports the chat's pending queue depth.
func (s *Store) Len(ctx context.Context, chatID int64) int {
	cq := s.chat(chatID)
	cq.mu.Lock()
	defer cq.mu.Unlock()
	s.restore(ctx, cq, chatID)
	return len(cq.items)
}
