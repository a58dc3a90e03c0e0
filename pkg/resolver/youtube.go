package resolver

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// youtubeAPI is the slice of the youtube client the resolver uses,
// abstracted so tests can run without the network.
type youtubeAPI interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// YouTubeExtractor resolves YouTube URLs with the native client library.
// It is faster than shelling out and is tried before yt-dlp for YouTube
// targets; anything it cannot handle falls through to the subprocess.
type YouTubeExtractor struct {
	client youtubeAPI
}

func NewYouTubeExtractor() *YouTubeExtractor {
	return &YouTubeExtractor{client: &youtube.Client{}}
}

func (e *YouTubeExtractor) Extract(ctx context.Context, url string, kind track.MediaKind) (Meta, error) {
	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return Meta{}, fmt.Errorf("get video: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if kind == track.KindVideo {
		if muxed := formats.Type("video/mp4"); len(muxed) > 0 {
			formats = muxed
		}
	}
	if len(formats) == 0 {
		return Meta{}, fmt.Errorf("no playable formats for %q", video.Title)
	}

	streamURL, err := e.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return Meta{}, fmt.Errorf("get stream url: %w", err)
	}

	meta := Meta{
		Title:      video.Title,
		Artist:     video.Author,
		Duration:   video.Duration,
		StreamURL:  streamURL,
		WebpageURL: url,
	}
	if len(video.Thumbnails) > 0 {
		meta.ThumbnailURL = video.Thumbnails[0].URL
	}
	return meta, nil
}
