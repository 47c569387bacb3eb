// Package youtube fetches video metadata from the YouTube Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linkeeper/linkeeper/models"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"
	fetchTimeout   = 10 * time.Second
)

// Client talks to the YouTube Data API. A client with an empty API key is
// valid and reports every video as unavailable, which pushes enrichment
// down the generic page-fetch path.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient creates a Data API client. apiKey may be empty.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   fetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// videosResponse is the subset of the videos.list response we consume.
type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title       string     `json:"title"`
			Description string     `json:"description"`
			Tags        []string   `json:"tags"`
			Thumbnails  thumbnails `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type thumbnails struct {
	Maxres  thumbnail `json:"maxres"`
	High    thumbnail `json:"high"`
	Medium  thumbnail `json:"medium"`
	Default thumbnail `json:"default"`
}

// best returns the highest-resolution thumbnail URL present.
func (t thumbnails) best() string {
	for _, th := range []thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th.URL != "" {
			return th.URL
		}
	}
	return ""
}

// FetchByResourceID fetches the snippet for a video id. The Image field of
// the result is the raw thumbnail URL; the caller is responsible for
// archiving it. Returns nil when the key is missing, the video does not
// exist, quota is exhausted, or the API is unreachable.
func (c *Client) FetchByResourceID(ctx context.Context, id string) *models.Metadata {
	if c == nil || c.apiKey == "" || id == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", id)
	q.Set("key", c.apiKey)
	endpoint := fmt.Sprintf("%s/videos?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Warn("youtube: bad request", "video_id", id, "error", err)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("youtube: api unreachable", "video_id", id, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 403 is usually quota exhaustion or a disabled key; both degrade
		// to the page-fetch fallback rather than failing the save.
		slog.Warn("youtube: api error", "video_id", id, "status", resp.StatusCode)
		return nil
	}

	var body videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("youtube: bad response body", "video_id", id, "error", err)
		return nil
	}
	if len(body.Items) == 0 {
		slog.Info("youtube: video not found", "video_id", id)
		return nil
	}

	snippet := body.Items[0].Snippet
	tags := snippet.Tags
	if tags == nil {
		tags = []string{}
	}

	return &models.Metadata{
		Title:       snippet.Title,
		Description: snippet.Description,
		Image:       snippet.Thumbnails.best(),
		Source:      models.SourceYouTube,
		Tags:        tags,
	}
}
