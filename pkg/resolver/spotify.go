package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const spotifyOembedEndpoint = "https://open.spotify.com/oembed"

// SpotifyResolver turns a Spotify link into a search phrase. Spotify does
// not serve raw audio, so the track is re-resolved on YouTube by title.
type SpotifyResolver struct {
	client   *http.Client
	endpoint string
}

func NewSpotifyResolver() *SpotifyResolver {
	return &SpotifyResolver{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: spotifyOembedEndpoint,
	}
}

type spotifyOembed struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// SearchPhrase fetches the track title via Spotify's public oembed
// endpoint and returns it as a query for re-resolution, plus the artwork
// URL when present.
func (r *SpotifyResolver) SearchPhrase(ctx context.Context, spotifyURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.endpoint+"?url="+url.QueryEscape(spotifyURL), nil)
	if err != nil {
		return "", "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("spotify oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("spotify oembed: status %d", resp.StatusCode)
	}

	var oembed spotifyOembed
	if err := json.NewDecoder(resp.Body).Decode(&oembed); err != nil {
		return "", "", fmt.Errorf("spotify oembed: %w", err)
	}
	if oembed.Title == "" {
		return "", "", fmt.Errorf("spotify oembed: empty title for %s", spotifyURL)
	}
	return oembed.Title, oembed.ThumbnailURL, nil
}
