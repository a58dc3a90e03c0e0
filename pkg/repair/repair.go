package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/player"
	"github.com/latoulicious/Ongaku/pkg/track"
)

var (
	// ErrRepairInProgress is returned when a chat already has a repair
	// running; concurrent repairs of the same chat would fight each other.
	ErrRepairInProgress = errors.New("repair already in progress for this chat")
	// ErrNothingToRestart is returned when a restart is requested for a
	// chat with no current track.
	ErrNothingToRestart = errors.New("no current track to restart")
)

// rejoinDelay is how long a fix waits between leaving and rejoining a
// call, giving the platform time to drop the dead session.
const rejoinDelay = 2 * time.Second

// CallBinding is the call lifecycle surface repairs drive.
type CallBinding interface {
	IsBound(chatID int64) bool
	Acquire(ctx context.Context, chatID int64) error
	Release(ctx context.Context, chatID int64)
	SweepInactive(ctx context.Context, skip ...int64) []int64
}

// Playback exposes the chat's current playback position.
type Playback interface {
	NowPlaying(chatID int64) (track.Track, player.State)
}

// StreamStarter restarts playback of a track on an existing or fresh call.
type StreamStarter interface {
	Start(ctx context.Context, chatID int64, trk track.Track) error
}

// QueueInfo reports queue depth for diagnostics.
type QueueInfo interface {
	Len(ctx context.Context, chatID int64) int
}

// Permissions reports bot permissions the chat is missing. Optional.
type Permissions interface {
	Missing(ctx context.Context, chatID int64) ([]string, error)
}

// AuditStore records each maintenance action and its outcome.
type AuditStore interface {
	Record(ctx context.Context, chatID int64, action, status, details string) (string, error)
}

// Notifier tells the chat when a repair could not recover it. Optional.
type Notifier interface {
	RepairFailed(ctx context.Context, chatID int64, reason string)
}

// Audit action and status names.
const (
	ActionFixVoice    = "fix_voice_connection"
	ActionRestart     = "restart_playback"
	ActionDiagnostics = "run_diagnostics"
	ActionHealthSweep = "health_sweep_release"

	statusOK     = "ok"
	statusFailed = "failed"
)

// Coordinator runs recovery sequences against a chat's voice session. At
// most one repair runs per chat; others are rejected rather than queued.
type Coordinator struct {
	binding  CallBinding
	playback Playback
	starter  StreamStarter
	queues   QueueInfo
	perms    Permissions
	audit    AuditStore
	notifier Notifier
	logger   *zap.Logger

	// delay is overridable in tests.
	delay time.Duration

	mu       sync.Mutex
	inflight map[int64]bool
}

func NewCoordinator(binding CallBinding, playback Playback, starter StreamStarter,
	queues QueueInfo, perms Permissions, audit AuditStore, notifier Notifier,
	logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		binding:  binding,
		playback: playback,
		starter:  starter,
		queues:   queues,
		perms:    perms,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		delay:    rejoinDelay,
		inflight: make(map[int64]bool),
	}
}

func (c *Coordinator) begin(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[chatID] {
		return false
	}
	c.inflight[chatID] = true
	return true
}

func (c *Coordinator) end(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, chatID)
}

func (c *Coordinator) record(ctx context.Context, chatID int64, action, status, details string) {
	if c.audit == nil {
		return
	}
	if _, err := c.audit.Record(ctx, chatID, action, status, details); err != nil {
		c.logger.Warn("audit record failed",
			zap.Int64("chat_id", chatID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (c *Coordinator) notifyFailure(ctx context.Context, chatID int64, reason string) {
	if c.notifier != nil {
		c.notifier.RepairFailed(ctx, chatID, reason)
	}
}

// FixVoiceConnection rebuilds the chat's call session: leave, wait for the
// platform to drop the dead call, rejoin, and restart whatever was
// playing. Every outcome is audited; the chat is notified on failure.
func (c *Coordinator) FixVoiceConnection(ctx context.Context, chatID int64) error {
	if !c.begin(chatID) {
		return ErrRepairInProgress
	}
	defer c.end(chatID)

	current, state := c.playback.NowPlaying(chatID)

	c.binding.Release(ctx, chatID)

	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		c.record(ctx, chatID, ActionFixVoice, statusFailed, "cancelled while waiting to rejoin")
		return ctx.Err()
	}

	if err := c.binding.Acquire(ctx, chatID); err != nil {
		c.record(ctx, chatID, ActionFixVoice, statusFailed, fmt.Sprintf("rejoin: %v", err))
		c.notifyFailure(ctx, chatID, "could not rejoin the voice chat")
		return fmt.Errorf("rejoin call: %w", err)
	}

	if state != player.StateIdle {
		if err := c.starter.Start(ctx, chatID, current); err != nil {
			c.record(ctx, chatID, ActionFixVoice, statusFailed, fmt.Sprintf("restart %q: %v", current.Title, err))
			c.notifyFailure(ctx, chatID, "rejoined, but playback could not be restarted")
			return fmt.Errorf("restart playback: %w", err)
		}
	}

	c.record(ctx, chatID, ActionFixVoice, statusOK, fmt.Sprintf("restarted %q", current.Title))
	c.logger.Info("voice connection repaired", zap.Int64("chat_id", chatID))
	return nil
}

// RestartPlayback restarts the chat's current track from the top without
// touching the call binding.
func (c *Coordinator) RestartPlayback(ctx context.Context, chatID int64) error {
	if !c.begin(chatID) {
		return ErrRepairInProgress
	}
	defer c.end(chatID)

	current, state := c.playback.NowPlaying(chatID)
	if state == player.StateIdle {
		c.record(ctx, chatID, ActionRestart, statusFailed, "no current track")
		return ErrNothingToRestart
	}
	if err := c.starter.Start(ctx, chatID, current); err != nil {
		c.record(ctx, chatID, ActionRestart, statusFailed, fmt.Sprintf("restart %q: %v", current.Title, err))
		c.notifyFailure(ctx, chatID, "playback could not be restarted")
		return err
	}
	c.record(ctx, chatID, ActionRestart, statusOK, fmt.Sprintf("restarted %q", current.Title))
	return nil
}

// RunDiagnostics collects a human-readable health report for the chat:
// call binding, playback state, queue depth, missing permissions.
func (c *Coordinator) RunDiagnostics(ctx context.Context, chatID int64) (string, error) {
	var b strings.Builder

	if c.binding.IsBound(chatID) {
		b.WriteString("voice: connected\n")
	} else {
		b.WriteString("voice: not connected\n")
	}

	current, state := c.playback.NowPlaying(chatID)
	switch state {
	case player.StateIdle:
		b.WriteString("playback: idle\n")
	default:
		fmt.Fprintf(&b, "playback: %s %q by %s\n", state, current.Title, current.Artist)
	}

	fmt.Fprintf(&b, "queue: %d track(s)\n", c.queues.Len(ctx, chatID))

	if c.perms != nil {
		missing, err := c.perms.Missing(ctx, chatID)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "permissions: check failed (%v)\n", err)
		case len(missing) == 0:
			b.WriteString("permissions: ok\n")
		default:
			fmt.Fprintf(&b, "permissions: missing %s\n", strings.Join(missing, ", "))
		}
	}

	report := b.String()
	c.record(ctx, chatID, ActionDiagnostics, statusOK, report)
	return report, nil
}

// HealthCheckAllChats probes every bound chat and releases dead calls.
// Chats with a repair inflight are left alone. Returns the released ids.
func (c *Coordinator) HealthCheckAllChats(ctx context.Context) []int64 {
	c.mu.Lock()
	skip := make([]int64, 0, len(c.inflight))
	for id := range c.inflight {
		skip = append(skip, id)
	}
	c.mu.Unlock()

	released := c.binding.SweepInactive(ctx, skip...)
	for _, chatID := range released {
		c.record(ctx, chatID, ActionHealthSweep, statusOK, "released inactive call")
	}
	if len(released) > 0 {
		c.logger.Info("health sweep released inactive calls",
			zap.Int("count", len(released)))
	}
	return released
}
