package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// fakeExtractor serves canned results keyed by target and profile name.
type fakeExtractor struct {
	results  map[string]map[string]Meta // target -> profile name -> meta
	errs     map[string]map[string]error
	playlist []Meta
	plErr    error
	calls    []string
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		results: make(map[string]map[string]Meta),
		errs:    make(map[string]map[string]error),
	}
}

func (f *fakeExtractor) set(target, profile string, m Meta) {
	if f.results[target] == nil {
		f.results[target] = make(map[string]Meta)
	}
	f.results[target][profile] = m
}

func (f *fakeExtractor) fail(target, profile string, err error) {
	if f.errs[target] == nil {
		f.errs[target] = make(map[string]error)
	}
	f.errs[target][profile] = err
}

func (f *fakeExtractor) Extract(_ context.Context, target string, p Profile) (Meta, error) {
	f.calls = append(f.calls, target+"/"+p.Name)
	if err := f.errs[target][p.Name]; err != nil {
		return Meta{}, err
	}
	if m, ok := f.results[target][p.Name]; ok {
		return m, nil
	}
	return Meta{}, fmt.Errorf("no canned result for %s/%s", target, p.Name)
}

func (f *fakeExtractor) ExtractPlaylist(context.Context, string, int) ([]Meta, error) {
	return f.playlist, f.plErr
}

type fakeNative struct {
	meta Meta
	err  error
}

func (f *fakeNative) Extract(context.Context, string, track.MediaKind) (Meta, error) {
	return f.meta, f.err
}

type fakeSpotify struct {
	phrase  string
	artwork string
	err     error
}

func (f *fakeSpotify) SearchPhrase(context.Context, string) (string, string, error) {
	return f.phrase, f.artwork, f.err
}

func meta(title string) Meta {
	return Meta{
		Title:     title,
		Artist:    "Artist",
		Duration:  3 * time.Minute,
		StreamURL: "https://cdn.example.com/" + title,
	}
}

func newTestResolver(extractor *fakeExtractor) *Resolver {
	r := New(extractor, nil)
	r.youtube = &fakeNative{err: errors.New("unused")}
	r.spotify = &fakeSpotify{err: errors.New("unused")}
	return r
}

func TestClassify(t *testing.T) {
	cases := []struct {
		target string
		source track.Source
		isURL  bool
	}{
		{"https://www.youtube.com/watch?v=abc", track.SourceYouTube, true},
		{"https://youtu.be/abc", track.SourceYouTube, true},
		{"https://music.youtube.com/watch?v=abc", track.SourceYouTube, true},
		{"https://open.spotify.com/track/abc", track.SourceSpotify, true},
		{"https://soundcloud.com/artist/song", track.SourceSoundCloud, true},
		{"https://t.me/channel/123", track.SourceTelegram, true},
		{"https://radio.example.com/live.m3u8", track.SourceRadio, true},
		{"rtmp://radio.example.com/live", track.SourceRadio, true},
		{"https://files.example.com/song.mp3", track.SourceDirect, true},
		{"https://example.com/page", track.SourceGeneric, true},
		{"lofi hip hop radio", track.SourceGeneric, false},
	}
	for _, tc := range cases {
		source, isURL := Classify(tc.target)
		assert.Equal(t, tc.source, source, tc.target)
		assert.Equal(t, tc.isURL, isURL, tc.target)
	}
}

func TestResolveFreeTextSearches(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.set("ytsearch1:never gonna give you up", "primary", meta("Never Gonna Give You Up"))
	r := newTestResolver(extractor)

	tracks, err := r.Resolve(context.Background(), "never gonna give you up", track.KindAudio, 7)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	trk := tracks[0]
	assert.Equal(t, "Never Gonna Give You Up", trk.Title)
	assert.Equal(t, track.SourceYouTube, trk.Source)
	assert.Equal(t, int64(7), trk.RequestedBy)
}

func TestResolveSecondaryProfileFallback(t *testing.T) {
	const target = "ytsearch1:blocked song"
	extractor := newFakeExtractor()
	extractor.fail(target, "primary", errors.New("403"))
	extractor.set(target, "secondary", meta("Blocked Song"))
	r := newTestResolver(extractor)

	tracks, err := r.Resolve(context.Background(), "blocked song", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Blocked Song", tracks[0].Title)
	assert.Equal(t, []string{target + "/primary", target + "/secondary"}, extractor.calls)
}

func TestResolveBothTiersFail(t *testing.T) {
	const target = "ytsearch1:gone"
	extractor := newFakeExtractor()
	extractor.fail(target, "primary", errors.New("403"))
	extractor.fail(target, "secondary", errors.New("404"))
	r := newTestResolver(extractor)

	_, err := r.Resolve(context.Background(), "gone", track.KindAudio, 1)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.EqualError(t, rerr.Primary, "403")
	assert.EqualError(t, rerr.Secondary, "404")
}

func TestResolveYouTubeNativeFirst(t *testing.T) {
	extractor := newFakeExtractor()
	r := newTestResolver(extractor)
	r.youtube = &fakeNative{meta: meta("Native Hit")}

	tracks, err := r.Resolve(context.Background(), "https://youtu.be/abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Native Hit", tracks[0].Title)
	assert.Empty(t, extractor.calls, "native success skips yt-dlp")
}

func TestResolveYouTubeFallsBackToYtDlp(t *testing.T) {
	const target = "https://youtu.be/abc"
	extractor := newFakeExtractor()
	extractor.set(target, "secondary", meta("Fallback Hit"))
	r := newTestResolver(extractor)
	r.youtube = &fakeNative{err: errors.New("cipher changed")}

	tracks, err := r.Resolve(context.Background(), target, track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Fallback Hit", tracks[0].Title)
	assert.Equal(t, track.SourceYouTube, tracks[0].Source)
}

func TestResolveSpotifyReResolves(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.set("ytsearch1:Song Title Artist Name", "primary", meta("Song Title"))
	r := newTestResolver(extractor)
	r.spotify = &fakeSpotify{phrase: "Song Title Artist Name", artwork: "https://img.example.com/a.jpg"}

	tracks, err := r.Resolve(context.Background(), "https://open.spotify.com/track/abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Song Title", tracks[0].Title)
	assert.Equal(t, track.SourceSpotify, tracks[0].Source, "source stays spotify after re-resolution")
}

func TestResolveSpotifyKeepsArtworkWhenMissing(t *testing.T) {
	m := meta("Song Title")
	m.ThumbnailURL = ""
	extractor := newFakeExtractor()
	extractor.set("ytsearch1:Song Title", "primary", m)
	r := newTestResolver(extractor)
	r.spotify = &fakeSpotify{phrase: "Song Title", artwork: "https://img.example.com/a.jpg"}

	tracks, err := r.Resolve(context.Background(), "https://open.spotify.com/track/abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "https://img.example.com/a.jpg", tracks[0].ThumbnailURL)
}

func TestResolveRadioBypassesExtraction(t *testing.T) {
	extractor := newFakeExtractor()
	r := newTestResolver(extractor)

	tracks, err := r.Resolve(context.Background(), "https://radio.example.com/live.m3u8", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, track.SourceRadio, tracks[0].Source)
	assert.True(t, tracks[0].IsLive())
	assert.Empty(t, extractor.calls)
}

func TestResolveDirectFileTitleFromPath(t *testing.T) {
	r := newTestResolver(newFakeExtractor())

	tracks, err := r.Resolve(context.Background(), "https://files.example.com/mixtape.mp3", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "mixtape", tracks[0].Title)
	assert.Equal(t, track.SourceDirect, tracks[0].Source)
	assert.Equal(t, "https://files.example.com/mixtape.mp3", tracks[0].StreamURL)
}

func TestIsPlaylistURL(t *testing.T) {
	cases := []struct {
		target string
		want   bool
	}{
		{"https://www.youtube.com/playlist?list=abc", true},
		{"https://www.youtube.com/watch?v=abc&list=xyz", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://open.spotify.com/playlist/abc", true},
		{"https://open.spotify.com/album/abc", true},
		{"https://open.spotify.com/track/abc", false},
		{"https://soundcloud.com/artist/sets/mix", true},
		{"https://soundcloud.com/artist/song", false},
		{"lofi hip hop radio", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsPlaylistURL(tc.target), tc.target)
	}
}

func TestResolveDispatchesPlaylistURL(t *testing.T) {
	extractor := newFakeExtractor()
	for i := 0; i < 2; i++ {
		page := fmt.Sprintf("https://www.youtube.com/watch?v=v%d", i)
		extractor.playlist = append(extractor.playlist, Meta{
			Title:      fmt.Sprintf("t%d", i),
			WebpageURL: page,
		})
		extractor.set(page, "primary", meta(fmt.Sprintf("t%d", i)))
	}
	r := newTestResolver(extractor)

	tracks, err := r.Resolve(context.Background(),
		"https://www.youtube.com/playlist?list=abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 2, "playlist URL expands without a separate entry point")
	assert.Equal(t, "t0", tracks[0].Title)
	assert.Equal(t, "t1", tracks[1].Title)
}

func TestResolveSpotifyPlaylistUnsupported(t *testing.T) {
	r := newTestResolver(newFakeExtractor())

	_, err := r.Resolve(context.Background(),
		"https://open.spotify.com/playlist/abc", track.KindAudio, 1)
	assert.ErrorIs(t, err, ErrSpotifyPlaylist)
}

func TestResolvePlaylistCapsAndOrders(t *testing.T) {
	extractor := newFakeExtractor()
	for i := 0; i < 4; i++ {
		page := fmt.Sprintf("https://www.youtube.com/watch?v=v%d", i)
		extractor.playlist = append(extractor.playlist, Meta{
			Title:      fmt.Sprintf("t%d", i),
			WebpageURL: page,
		})
		extractor.set(page, "primary", meta(fmt.Sprintf("t%d", i)))
	}
	r := newTestResolver(extractor)
	r.maxPlaylist = 3

	tracks, err := r.ResolvePlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 3, "capped at the playlist limit")
	for i, trk := range tracks {
		assert.Equal(t, fmt.Sprintf("t%d", i), trk.Title, "order preserved")
	}
}

func TestResolvePlaylistSkipsBrokenEntries(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.playlist = []Meta{
		{Title: "broken", WebpageURL: "https://www.youtube.com/watch?v=bad"},
		{Title: "good", WebpageURL: "https://www.youtube.com/watch?v=good"},
	}
	extractor.fail("https://www.youtube.com/watch?v=bad", "primary", errors.New("gone"))
	extractor.fail("https://www.youtube.com/watch?v=bad", "secondary", errors.New("gone"))
	extractor.set("https://www.youtube.com/watch?v=good", "primary", meta("good"))
	r := newTestResolver(extractor)

	tracks, err := r.ResolvePlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=abc", track.KindAudio, 1)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "good", tracks[0].Title)
}

func TestResolvePlaylistEmptyExpansion(t *testing.T) {
	r := newTestResolver(newFakeExtractor())

	_, err := r.ResolvePlaylist(context.Background(),
		"https://www.youtube.com/playlist?list=empty", track.KindAudio, 1)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
}
