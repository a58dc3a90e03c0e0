package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// Profile selects how an extraction runs. The primary profile asks for the
// best stream; the secondary is the degraded retry used when the primary
// is blocked or unavailable.
type Profile struct {
	Name      string
	Format    string
	ExtraArgs []string
}

// PrimaryProfile is the first extraction attempt for the media kind.
func PrimaryProfile(kind track.MediaKind) Profile {
	if kind == track.KindVideo {
		return Profile{
			Name:   "primary",
			Format: "best[height<=720][ext=mp4]/best[ext=mp4]/best",
		}
	}
	return Profile{
		Name:   "primary",
		Format: "bestaudio[ext=m4a]/bestaudio/best",
	}
}

// SecondaryProfile trades quality for reachability: lower ceilings plus an
// alternate player client that dodges some extraction blocks.
func SecondaryProfile(kind track.MediaKind) Profile {
	extra := []string{"--extractor-args", "youtube:player_client=android"}
	if kind == track.KindVideo {
		return Profile{
			Name:      "secondary",
			Format:    "best[height<=480]/worst",
			ExtraArgs: extra,
		}
	}
	return Profile{
		Name:      "secondary",
		Format:    "worstaudio/worst",
		ExtraArgs: extra,
	}
}

// Meta is the extracted description of one playable stream.
type Meta struct {
	Title        string
	Artist       string
	Duration     time.Duration
	StreamURL    string
	ThumbnailURL string
	WebpageURL   string
	IsLive       bool
}

// Extractor turns a URL or search target into playable stream metadata.
type Extractor interface {
	Extract(ctx context.Context, target string, p Profile) (Meta, error)
	ExtractPlaylist(ctx context.Context, url string, limit int) ([]Meta, error)
}

// ytDlpInfo is the subset of yt-dlp's JSON output the resolver reads.
type ytDlpInfo struct {
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	URL        string  `json:"url"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
	IsLive     bool    `json:"is_live"`
}

type ytDlpPlaylist struct {
	Entries []ytDlpInfo `json:"entries"`
}

// YtDlpExtractor shells out to yt-dlp. It handles every site yt-dlp does,
// which makes it both the search backend and the fallback extractor.
type YtDlpExtractor struct {
	path   string
	logger *zap.Logger
}

func NewYtDlpExtractor(path string, logger *zap.Logger) *YtDlpExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YtDlpExtractor{path: path, logger: logger}
}

func (e *YtDlpExtractor) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("yt-dlp: %s", msg)
	}
	return stdout.Bytes(), nil
}

func (e *YtDlpExtractor) Extract(ctx context.Context, target string, p Profile) (Meta, error) {
	args := []string{
		"--no-playlist",
		"--dump-single-json",
		"-f", p.Format,
	}
	args = append(args, p.ExtraArgs...)
	args = append(args, target)

	e.logger.Debug("extracting",
		zap.String("target", target), zap.String("profile", p.Name))

	out, err := e.run(ctx, args)
	if err != nil {
		return Meta{}, err
	}

	var info ytDlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return Meta{}, fmt.Errorf("parse yt-dlp output: %w", err)
	}
	return metaFromInfo(info)
}

// ExtractPlaylist expands a playlist URL into flat entries, at most limit
// of them. Entries are not individually stream-resolved here; each comes
// back with its webpage URL for later extraction.
func (e *YtDlpExtractor) ExtractPlaylist(ctx context.Context, url string, limit int) ([]Meta, error) {
	args := []string{
		"--flat-playlist",
		"--dump-single-json",
		"--playlist-end", fmt.Sprintf("%d", limit),
		url,
	}
	out, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var playlist ytDlpPlaylist
	if err := json.Unmarshal(out, &playlist); err != nil {
		return nil, fmt.Errorf("parse yt-dlp playlist output: %w", err)
	}

	metas := make([]Meta, 0, len(playlist.Entries))
	for _, entry := range playlist.Entries {
		m, err := metaFromInfo(entry)
		if err != nil {
			continue
		}
		metas = append(metas, m)
		if len(metas) >= limit {
			break
		}
	}
	return metas, nil
}

func metaFromInfo(info ytDlpInfo) (Meta, error) {
	streamURL := info.URL
	if streamURL == "" {
		streamURL = info.WebpageURL
	}
	if streamURL == "" {
		return Meta{}, fmt.Errorf("no stream url in extractor output")
	}
	artist := info.Uploader
	if artist == "" {
		artist = info.Channel
	}
	return Meta{
		Title:        info.Title,
		Artist:       artist,
		Duration:     time.Duration(info.Duration * float64(time.Second)),
		StreamURL:    streamURL,
		ThumbnailURL: info.Thumbnail,
		WebpageURL:   info.WebpageURL,
		IsLive:       info.IsLive,
	}, nil
}
