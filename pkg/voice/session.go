package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// ErrNoSession is returned by pause/resume/stop when the chat has no
// active stream session.
var ErrNoSession = fmt.Errorf("no active stream session")

// pipe is the owned transcode process for one chat. Abstracted so tests
// can run sessions without spawning ffmpeg.
type pipe interface {
	Output() io.Reader
	Terminate()
}

func (p *transcodePipe) Output() io.Reader { return p.stdout }

type spawnFunc func(ctx context.Context, sourceURL string, kind track.MediaKind) (pipe, error)

// sessionRecord is the per-chat bookkeeping: the bound track and, when
// direct playback was rejected, the owning transcode process.
type sessionRecord struct {
	trk  track.Track
	pipe pipe
}

// chatSession serializes one chat's start/stop against each other. The
// lock is per chat so a slow start for one chat never blocks another.
type chatSession struct {
	mu  sync.Mutex
	rec *sessionRecord
}

// Session drives the transport's play/pause/resume/stop primitives for
// the currently bound track in each chat. Direct URL playback is tried
// first; a transport rejection triggers the transcode-pipe fallback
// before the start fails.
type Session struct {
	transport Transport
	binding   *Binding
	logger    *zap.Logger
	spawn     spawnFunc

	mu    sync.Mutex
	chats map[int64]*chatSession
}

func NewSession(transport Transport, binding *Binding, ffmpegPath string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		transport: transport,
		binding:   binding,
		logger:    logger,
		chats:     make(map[int64]*chatSession),
	}
	s.spawn = func(ctx context.Context, sourceURL string, kind track.MediaKind) (pipe, error) {
		return newTranscodePipe(ctx, ffmpegPath, sourceURL, kind, logger)
	}
	return s
}

func (s *Session) chat(chatID int64) *chatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.chats[chatID]
	if !ok {
		cs = &chatSession{}
		s.chats[chatID] = cs
	}
	return cs
}

// Start binds the chat's call and begins playback of trk. On a direct
// playback failure it falls back to a local transcode pipe; it fails only
// when both tiers fail.
func (s *Session) Start(ctx context.Context, chatID int64, trk track.Track) error {
	if err := trk.Validate(); err != nil {
		return err
	}
	if err := s.binding.Acquire(ctx, chatID); err != nil {
		return err
	}

	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	// One active session per chat: tear down any previous pipe first.
	if cs.rec != nil && cs.rec.pipe != nil {
		cs.rec.pipe.Terminate()
	}
	cs.rec = nil

	directErr := s.transport.Play(ctx, chatID, Source{URL: trk.StreamURL, Kind: trk.Kind})
	if directErr == nil {
		cs.rec = &sessionRecord{trk: trk}
		s.logger.Info("stream started",
			zap.Int64("chat_id", chatID),
			zap.String("title", trk.Title),
			zap.String("kind", trk.Kind.String()))
		return nil
	}

	s.logger.Warn("direct playback rejected, falling back to transcode pipe",
		zap.Int64("chat_id", chatID), zap.Error(directErr))

	p, err := s.spawn(ctx, trk.StreamURL, trk.Kind)
	if err != nil {
		return &TranscodeError{ChatID: chatID, Err: err}
	}
	if err := s.transport.Play(ctx, chatID, Source{Reader: p.Output(), Kind: trk.Kind}); err != nil {
		p.Terminate()
		return transportErr("play", chatID, err)
	}

	cs.rec = &sessionRecord{trk: trk, pipe: p}
	s.logger.Info("stream started via transcode pipe",
		zap.Int64("chat_id", chatID),
		zap.String("title", trk.Title),
		zap.String("kind", trk.Kind.String()))
	return nil
}

// Pause passes through to the transport. Failures are reported, not
// retried.
func (s *Session) Pause(ctx context.Context, chatID int64) error {
	if _, ok := s.Current(chatID); !ok {
		return ErrNoSession
	}
	if err := s.transport.Pause(ctx, chatID); err != nil {
		return transportErr("pause", chatID, err)
	}
	return nil
}

// Resume passes through to the transport.
func (s *Session) Resume(ctx context.Context, chatID int64) error {
	if _, ok := s.Current(chatID); !ok {
		return ErrNoSession
	}
	if err := s.transport.Resume(ctx, chatID); err != nil {
		return transportErr("resume", chatID, err)
	}
	return nil
}

// Stop tears the chat's session down. Cleanup is best-effort but
// exhaustive: a transport stop failure never skips terminating the owned
// transcode process, releasing the call binding, or clearing bookkeeping.
func (s *Session) Stop(ctx context.Context, chatID int64) error {
	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	rec := cs.rec
	cs.rec = nil

	var stopErr error
	if err := s.transport.Stop(ctx, chatID); err != nil {
		stopErr = transportErr("stop", chatID, err)
		s.logger.Warn("transport stop failed, continuing cleanup",
			zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if rec != nil && rec.pipe != nil {
		rec.pipe.Terminate()
	}
	s.binding.Release(ctx, chatID)
	return stopErr
}

// Current returns the track bound to the chat's active session.
func (s *Session) Current(chatID int64) (track.Track, bool) {
	cs := s.chat(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.rec == nil {
		return track.Track{}, false
	}
	return cs.rec.trk, true
}
