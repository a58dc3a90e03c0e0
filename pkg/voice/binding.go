package voice

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Binding tracks which chats currently hold an open call session and
// serializes join/leave against the transport. The whole table shares one
// lock: join/leave is rate-sensitive and infrequent relative to playback,
// so global serialization is a deliberate simplification.
type Binding struct {
	transport Transport
	logger    *zap.Logger

	mu    sync.Mutex
	bound map[int64]bool
}

func NewBinding(transport Transport, logger *zap.Logger) *Binding {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binding{
		transport: transport,
		logger:    logger,
		bound:     make(map[int64]bool),
	}
}

// Acquire joins the chat's call unless already bound. Idempotent: a bound
// chat returns success without a second join, and "already joined" errors
// from the transport count as success.
func (b *Binding) Acquire(ctx context.Context, chatID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound[chatID] {
		return nil
	}
	if err := normalizeJoin(b.transport.Join(ctx, chatID)); err != nil {
		return transportErr("join", chatID, err)
	}
	b.bound[chatID] = true
	b.logger.Info("joined call", zap.Int64("chat_id", chatID))
	return nil
}

// Release leaves the chat's call. Idempotent: releasing an unbound chat is
// a no-op, and the binding is cleared even when the transport leave fails
// so bookkeeping never leaks.
func (b *Binding) Release(ctx context.Context, chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.bound[chatID] {
		return
	}
	delete(b.bound, chatID)
	if err := normalizeLeave(b.transport.Leave(ctx, chatID)); err != nil {
		b.logger.Warn("leave failed, binding cleared anyway",
			zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	b.logger.Info("left call", zap.Int64("chat_id", chatID))
}

// IsBound reports whether the chat currently holds a call session.
func (b *Binding) IsBound(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound[chatID]
}

// Bound returns the chat ids with open call sessions.
func (b *Binding) Bound() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int64, 0, len(b.bound))
	for id := range b.bound {
		ids = append(ids, id)
	}
	return ids
}

// SweepInactive probes every bound chat and releases those whose call is
// no longer live, returning the released chat ids. Chats listed in skip
// are left untouched.
func (b *Binding) SweepInactive(ctx context.Context, skip ...int64) []int64 {
	skipped := make(map[int64]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	var released []int64
	for _, chatID := range b.Bound() {
		if skipped[chatID] {
			continue
		}
		alive, err := b.transport.ProbeLiveness(ctx, chatID)
		if err != nil {
			b.logger.Warn("liveness probe failed",
				zap.Int64("chat_id", chatID), zap.Error(err))
			continue
		}
		if alive {
			continue
		}
		b.Release(ctx, chatID)
		released = append(released, chatID)
	}
	return released
}
