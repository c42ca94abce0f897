package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"coin_exchange/internal/domain"

	"github.com/tidwall/gjson"
)

// Media is what the catalog knows about an external video.
type Media struct {
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title"`
}

// Catalog looks up external media metadata.
type Catalog interface {
	LookupMedia(ctx context.Context, externalID string) (*Media, error)
}

// ErrCatalogConfig means the catalog cannot be queried as configured.
var ErrCatalogConfig = errors.New("catalog: api key is invalid or missing")

const youtubeVideosURL = "https://www.googleapis.com/youtube/v3/videos"

// YouTube is a Catalog backed by the YouTube Data API.
type YouTube struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewYouTube returns a client for the given API key.
func NewYouTube(apiKey string) *YouTube {
	return &YouTube{
		apiKey:   apiKey,
		endpoint: youtubeVideosURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// LookupMedia fetches the snippet of one video.
func (y *YouTube) LookupMedia(ctx context.Context, externalID string) (*Media, error) {
	if y.apiKey == "" {
		return nil, ErrCatalogConfig
	}
	q := url.Values{}
	q.Set("id", externalID)
	q.Set("part", "snippet")
	q.Set("key", y.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("catalog: read response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("catalog: malformed response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(gjson.GetBytes(raw, "error.message").String(), "API key") {
			return nil, ErrCatalogConfig
		}
		return nil, fmt.Errorf("catalog: unexpected status %d", resp.StatusCode)
	}
	snippet := gjson.GetBytes(raw, "items.0.snippet")
	if !snippet.Exists() {
		return nil, fmt.Errorf("%w: could not find this video on YouTube", domain.ErrNotFound)
	}
	return &Media{
		Title:        snippet.Get("title").String(),
		ChannelID:    snippet.Get("channelId").String(),
		ChannelTitle: snippet.Get("channelTitle").String(),
	}, nil
}

var (
	idMarker = regexp.MustCompile(`vi/|v%3D|v=|/v/|youtu\.be/|/embed/`)
	idEnd    = regexp.MustCompile(`[?&]`)
)

// ParseExternalID extracts the video id from a YouTube URL.
func ParseExternalID(rawURL string) (string, bool) {
	parts := idMarker.Split(strings.TrimSpace(rawURL), 2)
	if len(parts) < 2 {
		return "", false
	}
	id := idEnd.Split(parts[1], 2)[0]
	if id == "" {
		return "", false
	}
	return id, true
}
