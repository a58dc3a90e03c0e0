package track

import (
	"errors"
	"time"
)

// MediaKind distinguishes audio-only streams from video streams.
type MediaKind int

const (
	KindAudio MediaKind = iota
	KindVideo
)

func (k MediaKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Source identifies the platform a track was resolved from.
type Source int

const (
	SourceYouTube Source = iota
	SourceSpotify
	SourceSoundCloud
	SourceTelegram
	SourceDirect
	SourceRadio
	SourceGeneric
)

func (s Source) String() string {
	switch s {
	case SourceYouTube:
		return "youtube"
	case SourceSpotify:
		return "spotify"
	case SourceSoundCloud:
		return "soundcloud"
	case SourceTelegram:
		return "telegram"
	case SourceDirect:
		return "direct"
	case SourceRadio:
		return "radio"
	case SourceGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// UnknownArtist is the artist name used when resolution could not
// determine one.
const UnknownArtist = "Unknown Artist"

var ErrNoStreamURL = errors.New("track has no stream URL")

// Track is the resolved, playable representation of a requested song or
// video. It is treated as immutable once produced by the resolver; a
// track that fails Validate never reaches the queue or a stream session.
type Track struct {
	Title        string
	Artist       string
	Duration     time.Duration // 0 means live or unknown length
	StreamURL    string        // direct playable URL or local file path
	Kind         MediaKind
	Source       Source
	ThumbnailURL string
	RequestedBy  int64 // requesting user id, 0 when unknown
}

// Validate reports whether the track can be handed to a stream session.
func (t Track) Validate() error {
	if t.StreamURL == "" {
		return ErrNoStreamURL
	}
	return nil
}

// IsLive reports whether the track has no known finite length.
func (t Track) IsLive() bool {
	return t.Duration == 0
}

// Normalize fills defaults for optional fields so consumers never need
// fallback logic of their own.
func (t Track) Normalize() Track {
	if t.Title == "" {
		t.Title = "Unknown Track"
	}
	if t.Artist == "" {
		t.Artist = UnknownArtist
	}
	return t
}
