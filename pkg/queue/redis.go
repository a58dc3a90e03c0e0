package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/latoulicious/Ongaku/pkg/track"
)

// RedisBacking persists each chat's queue as a sorted set scored by a
// monotonic enqueue sequence, so play order survives a process restart.
type RedisBacking struct {
	client *redis.Client
}

func NewRedisBacking(client *redis.Client) *RedisBacking {
	return &RedisBacking{client: client}
}

func queueKey(chatID int64) string {
	return fmt.Sprintf("ongaku:queue:%d", chatID)
}

func seqKey(chatID int64) string {
	return fmt.Sprintf("ongaku:queue:%d:seq", chatID)
}

// queueEntry is the persisted row format. Seq keeps members unique even
// when the same track is enqueued twice.
type queueEntry struct {
	Seq        int64  `json:"seq"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationS  int64  `json:"duration,omitempty"`
	StreamURL  string `json:"streamUrl"`
	Kind       int    `json:"kind"`
	Source     int    `json:"source"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Requester  int64  `json:"requestedBy,omitempty"`
	EnqueuedAt int64  `json:"enqueuedAt"`
}

func (e queueEntry) toTrack() track.Track {
	return track.Track{
		Title:        e.Title,
		Artist:       e.Artist,
		Duration:     time.Duration(e.DurationS) * time.Second,
		StreamURL:    e.StreamURL,
		Kind:         track.MediaKind(e.Kind),
		Source:       track.Source(e.Source),
		ThumbnailURL: e.Thumbnail,
		RequestedBy:  e.Requester,
	}
}

func (b *RedisBacking) Append(ctx context.Context, chatID int64, t track.Track, enqueuedAt time.Time) error {
	seq, err := b.client.Incr(ctx, seqKey(chatID)).Result()
	if err != nil {
		return fmt.Errorf("queue backing: next sequence: %w", err)
	}
	entry := queueEntry{
		Seq:        seq,
		Title:      t.Title,
		Artist:     t.Artist,
		DurationS:  int64(t.Duration / time.Second),
		StreamURL:  t.StreamURL,
		Kind:       int(t.Kind),
		Source:     int(t.Source),
		Thumbnail:  t.ThumbnailURL,
		Requester:  t.RequestedBy,
		EnqueuedAt: enqueuedAt.Unix(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue backing: marshal entry: %w", err)
	}
	if err := b.client.ZAdd(ctx, queueKey(chatID), redis.Z{
		Score:  float64(seq),
		Member: raw,
	}).Err(); err != nil {
		return fmt.Errorf("queue backing: append: %w", err)
	}
	return nil
}

func (b *RedisBacking) PopOldest(ctx context.Context, chatID int64) (track.Track, bool, error) {
	members, err := b.client.ZPopMin(ctx, queueKey(chatID), 1).Result()
	if err != nil {
		return track.Track{}, false, fmt.Errorf("queue backing: pop: %w", err)
	}
	if len(members) == 0 {
		return track.Track{}, false, nil
	}
	raw, ok := members[0].Member.(string)
	if !ok {
		return track.Track{}, false, fmt.Errorf("queue backing: unexpected member type %T", members[0].Member)
	}
	var entry queueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return track.Track{}, false, fmt.Errorf("queue backing: unmarshal entry: %w", err)
	}
	return entry.toTrack(), true, nil
}

func (b *RedisBacking) Oldest(ctx context.Context, chatID int64, limit int) ([]track.Track, error) {
	raws, err := b.client.ZRange(ctx, queueKey(chatID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue backing: range: %w", err)
	}
	tracks := make([]track.Track, 0, len(raws))
	for _, raw := range raws {
		var entry queueEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("queue backing: unmarshal entry: %w", err)
		}
		tracks = append(tracks, entry.toTrack())
	}
	return tracks, nil
}

func (b *RedisBacking) Clear(ctx context.Context, chatID int64) (int, error) {
	count, err := b.client.ZCard(ctx, queueKey(chatID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue backing: count: %w", err)
	}
	if err := b.client.Del(ctx, queueKey(chatID), seqKey(chatID)).Err(); err != nil {
		return 0, fmt.Errorf("queue backing: clear: %w", err)
	}
	return int(count), nil
}
