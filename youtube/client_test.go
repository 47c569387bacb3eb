package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient("test-key")
	c.baseURL = server.URL
	return c
}

func TestFetchByResourceID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("part"); got != "snippet" {
			t.Errorf("part = %q, want snippet", got)
		}
		if got := r.URL.Query().Get("id"); got != "dQw4w9WgXcQ" {
			t.Errorf("id = %q, want dQw4w9WgXcQ", got)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, want test-key", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [{
				"snippet": {
					"title": "Test Video",
					"description": "A test description",
					"tags": ["music", "retro"],
					"thumbnails": {
						"default": {"url": "https://i.ytimg.com/vi/x/default.jpg"},
						"medium": {"url": "https://i.ytimg.com/vi/x/mqdefault.jpg"},
						"high": {"url": "https://i.ytimg.com/vi/x/hqdefault.jpg"},
						"maxres": {"url": "https://i.ytimg.com/vi/x/maxresdefault.jpg"}
					}
				}
			}]
		}`))
	})

	meta := c.FetchByResourceID(context.Background(), "dQw4w9WgXcQ")
	if meta == nil {
		t.Fatal("expected metadata, got nil")
	}
	if meta.Title != "Test Video" {
		t.Errorf("Title = %q, want %q", meta.Title, "Test Video")
	}
	if meta.Description != "A test description" {
		t.Errorf("Description = %q, want %q", meta.Description, "A test description")
	}
	if meta.Image != "https://i.ytimg.com/vi/x/maxresdefault.jpg" {
		t.Errorf("Image = %q, want maxres thumbnail", meta.Image)
	}
	if len(meta.Tags) != 2 || meta.Tags[0] != "music" {
		t.Errorf("Tags = %v, want [music retro]", meta.Tags)
	}
}

func TestFetchByResourceIDThumbnailFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"items": [{
				"snippet": {
					"title": "Low Res Video",
					"thumbnails": {
						"default": {"url": "https://i.ytimg.com/vi/x/default.jpg"},
						"medium": {"url": "https://i.ytimg.com/vi/x/mqdefault.jpg"}
					}
				}
			}]
		}`))
	})

	meta := c.FetchByResourceID(context.Background(), "abc123")
	if meta == nil {
		t.Fatal("expected metadata, got nil")
	}
	if meta.Image != "https://i.ytimg.com/vi/x/mqdefault.jpg" {
		t.Errorf("Image = %q, want medium thumbnail", meta.Image)
	}
	if meta.Tags == nil {
		t.Error("Tags should never be nil")
	}
}

func TestFetchByResourceIDNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": []}`))
	})

	if meta := c.FetchByResourceID(context.Background(), "missing"); meta != nil {
		t.Errorf("expected nil for unknown video, got %+v", meta)
	}
}

func TestFetchByResourceIDQuotaExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "message": "quotaExceeded"}}`))
	})

	if meta := c.FetchByResourceID(context.Background(), "abc123"); meta != nil {
		t.Errorf("expected nil on quota error, got %+v", meta)
	}
}

func TestFetchByResourceIDNoAPIKey(t *testing.T) {
	requests := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})
	c.apiKey = ""

	if meta := c.FetchByResourceID(context.Background(), "abc123"); meta != nil {
		t.Errorf("expected nil without API key, got %+v", meta)
	}
	if requests != 0 {
		t.Errorf("expected no HTTP requests without API key, got %d", requests)
	}
}
