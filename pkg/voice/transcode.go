package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// Transcode output defaults. These are operational constants of the
// transport contract, not user-tunable settings.
const (
	audioSampleRate = 48000
	audioChannels   = 2
	videoWidth      = 640
	videoHeight     = 480
	videoFrameRate  = 30

	terminateWait = 3 * time.Second
)

// TranscodeError reports a transcode subprocess that failed to start or
// exited abnormally. There is no further fallback after this tier.
type TranscodeError struct {
	ChatID int64
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed for chat %d: %v", e.ChatID, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// transcodePipe owns one ffmpeg process converting a remote source into a
// raw stream the transport can consume when direct URL playback is
// rejected: s16le stereo 48kHz PCM for audio, yuv420p 640x480 30fps raw
// frames for video.
type transcodePipe struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *zap.Logger
}

func transcodeArgs(sourceURL string, kind track.MediaKind) []string {
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", sourceURL,
	}
	switch kind {
	case track.KindVideo:
		args = append(args,
			"-f", "rawvideo",
			"-pix_fmt", "yuv420p",
			"-vf", fmt.Sprintf("scale=%d:%d", videoWidth, videoHeight),
			"-r", fmt.Sprintf("%d", videoFrameRate),
			"-an",
		)
	default:
		args = append(args,
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-ar", fmt.Sprintf("%d", audioSampleRate),
			"-ac", fmt.Sprintf("%d", audioChannels),
			"-vn",
		)
	}
	return append(args, "pipe:1")
}

func newTranscodePipe(ctx context.Context, ffmpegPath, sourceURL string, kind track.MediaKind, logger *zap.Logger) (*transcodePipe, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, transcodeArgs(sourceURL, kind)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &transcodePipe{cmd: cmd, stdout: stdout, logger: logger}
	go p.drainStderr(stderr)
	return p, nil
}

// drainStderr keeps ffmpeg from blocking on a full stderr buffer.
func (p *transcodePipe) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Debug("ffmpeg", zap.String("line", scanner.Text()))
	}
}

// Terminate asks the process to exit, waits a bounded interval, then
// force-kills. Never blocks indefinitely on teardown.
func (p *transcodePipe) Terminate() {
	if p == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_, _ = p.cmd.Process.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(terminateWait):
		p.logger.Warn("ffmpeg did not exit after SIGTERM, killing",
			zap.Int("pid", p.cmd.Process.Pid))
		_ = p.cmd.Process.Kill()
		<-done
	}
}
