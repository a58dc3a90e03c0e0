package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// ResolutionError reports that every extraction tier failed for a target.
type ResolutionError struct {
	Target    string
	Primary   error
	Secondary error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q: primary: %v; secondary: %v",
		e.Target, e.Primary, e.Secondary)
}

func (e *ResolutionError) Unwrap() error { return e.Secondary }

// DefaultMaxPlaylist caps how many playlist entries one request expands to.
const DefaultMaxPlaylist = 50

// ErrSpotifyPlaylist is returned for Spotify playlist and album links:
// Spotify exposes no track listing to anonymous clients, so collections
// cannot be expanded, only individual track links re-resolved.
var ErrSpotifyPlaylist = errors.New("spotify playlists cannot be expanded; request tracks individually")

// searchPrefix turns free text into a single-result YouTube search.
const searchPrefix = "ytsearch1:"

type nativeYouTube interface {
	Extract(ctx context.Context, url string, kind track.MediaKind) (Meta, error)
}

type spotifyPhrases interface {
	SearchPhrase(ctx context.Context, spotifyURL string) (string, string, error)
}

// Resolver turns user input, a URL of any supported platform or free
// text, into playable tracks. YouTube links go through the native client
// first; everything else, and every fallback, goes through yt-dlp.
type Resolver struct {
	extractor   Extractor
	youtube     nativeYouTube
	spotify     spotifyPhrases
	maxPlaylist int
	logger      *zap.Logger
}

func New(extractor Extractor, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		extractor:   extractor,
		youtube:     NewYouTubeExtractor(),
		spotify:     NewSpotifyResolver(),
		maxPlaylist: DefaultMaxPlaylist,
		logger:      logger,
	}
}

// SetMaxPlaylist overrides the playlist expansion cap.
func (r *Resolver) SetMaxPlaylist(n int) {
	if n > 0 {
		r.maxPlaylist = n
	}
}

// Classify maps the target to its source platform and reports whether it
// is a URL at all; non-URLs are treated as search text.
func Classify(target string) (track.Source, bool) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		if err == nil && (u.Scheme == "rtmp" || u.Scheme == "rtsp") {
			return track.SourceRadio, true
		}
		return track.SourceGeneric, false
	}

	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	switch {
	case host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com" || host == "m.youtube.com":
		return track.SourceYouTube, true
	case host == "open.spotify.com" || host == "spotify.com":
		return track.SourceSpotify, true
	case host == "soundcloud.com" || strings.HasSuffix(host, ".soundcloud.com"):
		return track.SourceSoundCloud, true
	case host == "t.me" || host == "telegram.me":
		return track.SourceTelegram, true
	}

	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u8", ".pls":
		return track.SourceRadio, true
	case ".mp3", ".aac", ".ogg", ".wav", ".flac", ".m4a", ".opus", ".mp4", ".mkv", ".webm":
		return track.SourceDirect, true
	}
	return track.SourceGeneric, true
}

// IsPlaylistURL reports whether the URL names a collection rather than a
// single item.
func IsPlaylistURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return false
	}
	source, isURL := Classify(target)
	if !isURL {
		return false
	}
	p := strings.ToLower(u.Path)
	switch source {
	case track.SourceYouTube:
		return u.Query().Get("list") != "" || strings.HasPrefix(p, "/playlist")
	case track.SourceSpotify:
		return strings.Contains(p, "/playlist/") || strings.Contains(p, "/album/")
	case track.SourceSoundCloud:
		return strings.Contains(p, "/sets/")
	default:
		return false
	}
}

// Resolve turns user input into playable tracks: a playlist URL expands
// into its entries, anything else resolves to a single track.
func (r *Resolver) Resolve(ctx context.Context, target string, kind track.MediaKind, requestedBy int64) ([]track.Track, error) {
	source, isURL := Classify(target)

	if isURL && IsPlaylistURL(target) {
		if source == track.SourceSpotify {
			return nil, ErrSpotifyPlaylist
		}
		return r.ResolvePlaylist(ctx, target, kind, requestedBy)
	}

	trk, err := r.resolveOne(ctx, target, source, isURL, kind, requestedBy)
	if err != nil {
		return nil, err
	}
	return []track.Track{trk}, nil
}

func (r *Resolver) resolveOne(ctx context.Context, target string, source track.Source, isURL bool, kind track.MediaKind, requestedBy int64) (track.Track, error) {
	switch {
	case !isURL && source != track.SourceRadio:
		meta, err := r.extractTiered(ctx, searchPrefix+target, kind)
		if err != nil {
			return track.Track{}, err
		}
		return buildTrack(meta, kind, track.SourceYouTube, requestedBy), nil

	case source == track.SourceRadio || source == track.SourceDirect:
		return directTrack(target, kind, source, requestedBy), nil

	case source == track.SourceSpotify:
		return r.resolveSpotify(ctx, target, kind, requestedBy)

	case source == track.SourceYouTube:
		return r.resolveYouTube(ctx, target, kind, requestedBy)

	default:
		meta, err := r.extractTiered(ctx, target, kind)
		if err != nil {
			return track.Track{}, err
		}
		return buildTrack(meta, kind, source, requestedBy), nil
	}
}

// resolveYouTube tries the native client first and falls back to yt-dlp
// with the degraded profile.
func (r *Resolver) resolveYouTube(ctx context.Context, target string, kind track.MediaKind, requestedBy int64) (track.Track, error) {
	meta, nativeErr := r.youtube.Extract(ctx, target, kind)
	if nativeErr == nil {
		return buildTrack(meta, kind, track.SourceYouTube, requestedBy), nil
	}
	r.logger.Warn("native youtube extraction failed, retrying with yt-dlp",
		zap.String("target", target), zap.Error(nativeErr))

	meta, fallbackErr := r.extractor.Extract(ctx, target, SecondaryProfile(kind))
	if fallbackErr != nil {
		return track.Track{}, &ResolutionError{Target: target, Primary: nativeErr, Secondary: fallbackErr}
	}
	return buildTrack(meta, kind, track.SourceYouTube, requestedBy), nil
}

// resolveSpotify re-resolves the Spotify track on YouTube by title, since
// Spotify serves no raw audio.
func (r *Resolver) resolveSpotify(ctx context.Context, target string, kind track.MediaKind, requestedBy int64) (track.Track, error) {
	phrase, artwork, err := r.spotify.SearchPhrase(ctx, target)
	if err != nil {
		return track.Track{}, fmt.Errorf("resolve spotify link: %w", err)
	}

	meta, err := r.extractTiered(ctx, searchPrefix+phrase, kind)
	if err != nil {
		return track.Track{}, err
	}
	trk := buildTrack(meta, kind, track.SourceSpotify, requestedBy)
	if trk.ThumbnailURL == "" {
		trk.ThumbnailURL = artwork
	}
	return trk, nil
}

func (r *Resolver) extractTiered(ctx context.Context, target string, kind track.MediaKind) (Meta, error) {
	meta, primaryErr := r.extractor.Extract(ctx, target, PrimaryProfile(kind))
	if primaryErr == nil {
		return meta, nil
	}
	r.logger.Warn("primary extraction failed, retrying with secondary profile",
		zap.String("target", target), zap.Error(primaryErr))

	meta, secondaryErr := r.extractor.Extract(ctx, target, SecondaryProfile(kind))
	if secondaryErr != nil {
		return Meta{}, &ResolutionError{Target: target, Primary: primaryErr, Secondary: secondaryErr}
	}
	return meta, nil
}

// ResolvePlaylist expands a playlist URL into playable tracks, capped at
// the playlist limit. Entries that fail to resolve are skipped; an
// expansion with no playable tracks is an error.
func (r *Resolver) ResolvePlaylist(ctx context.Context, playlistURL string, kind track.MediaKind, requestedBy int64) ([]track.Track, error) {
	metas, err := r.extractor.ExtractPlaylist(ctx, playlistURL, r.maxPlaylist)
	if err != nil {
		return nil, fmt.Errorf("expand playlist: %w", err)
	}

	source, _ := Classify(playlistURL)
	tracks := make([]track.Track, 0, len(metas))
	for _, entry := range metas {
		target := entry.WebpageURL
		if target == "" {
			target = entry.StreamURL
		}
		meta, err := r.extractTiered(ctx, target, kind)
		if err != nil {
			r.logger.Warn("skipping unplayable playlist entry",
				zap.String("title", entry.Title), zap.Error(err))
			continue
		}
		tracks = append(tracks, buildTrack(meta, kind, source, requestedBy))
		if len(tracks) >= r.maxPlaylist {
			break
		}
	}
	if len(tracks) == 0 {
		return nil, &ResolutionError{
			Target:    playlistURL,
			Primary:   fmt.Errorf("playlist expanded to no playable tracks"),
			Secondary: fmt.Errorf("playlist expanded to no playable tracks"),
		}
	}
	return tracks, nil
}

func buildTrack(meta Meta, kind track.MediaKind, source track.Source, requestedBy int64) track.Track {
	trk := track.Track{
		Title:        meta.Title,
		Artist:       meta.Artist,
		Duration:     meta.Duration,
		StreamURL:    meta.StreamURL,
		Kind:         kind,
		Source:       source,
		ThumbnailURL: meta.ThumbnailURL,
		RequestedBy:  requestedBy,
	}
	if meta.IsLive {
		trk.Duration = 0
	}
	return trk.Normalize()
}

// directTrack wraps a raw media or radio URL without extraction; the
// stream plays as-is and the title falls out of the URL path.
func directTrack(target string, kind track.MediaKind, source track.Source, requestedBy int64) track.Track {
	title := ""
	if u, err := url.Parse(target); err == nil {
		base := path.Base(u.Path)
		title = strings.TrimSuffix(base, path.Ext(base))
	}
	if source == track.SourceRadio && title == "" {
		title = "Radio Stream"
	}
	trk := track.Track{
		Title:       title,
		StreamURL:   target,
		Kind:        kind,
		Source:      source,
		RequestedBy: requestedBy,
	}
	return trk.Normalize()
}
