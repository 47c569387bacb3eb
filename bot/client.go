package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// SaveOutcome is the result of submitting a URL to the link API.
type SaveOutcome struct {
	Created bool // false means the URL was already saved and got refreshed
	Title   string
	URL     string
}

// APIError is a non-2xx response from the link API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("link API returned %d: %s", e.Status, e.Message)
}

// APIClient submits URLs to the link API with API-key auth.
type APIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAPIClient creates a client for the link API at baseURL.
func NewAPIClient(baseURL, apiKey string) (*APIClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("link API base URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("link API key is required")
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			// Saving waits on metadata enrichment server-side; allow for a
			// slow page fetch plus image archive.
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// SaveURL posts url to the link API. Non-2xx responses come back as
// *APIError so callers can phrase replies by failure class.
func (c *APIClient) SaveURL(ctx context.Context, url string) (*SaveOutcome, error) {
	payload, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/urls", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("save request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return nil, &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	var view struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("failed to decode save response: %w", err)
	}

	return &SaveOutcome{
		Created: resp.StatusCode == http.StatusCreated,
		Title:   view.Title,
		URL:     view.URL,
	}, nil
}
