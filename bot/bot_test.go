package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bare url",
			text: "https://example.com/article",
			want: "https://example.com/article",
		},
		{
			name: "url inside text",
			text: "check this out https://youtu.be/abc123 it's great",
			want: "https://youtu.be/abc123",
		},
		{
			name: "first of several",
			text: "https://a.example.com and https://b.example.com",
			want: "https://a.example.com",
		},
		{
			name: "plain http",
			text: "http://example.com",
			want: "http://example.com",
		},
		{
			name: "no url",
			text: "hello there",
			want: "",
		},
		{
			name: "scheme-less",
			text: "example.com/article",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractURL(tt.text); got != tt.want {
				t.Errorf("ExtractURL(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

// fakeSaver scripts the link API outcome.
type fakeSaver struct {
	outcome *SaveOutcome
	err     error
	gotURL  string
}

func (f *fakeSaver) SaveURL(_ context.Context, url string) (*SaveOutcome, error) {
	f.gotURL = url
	return f.outcome, f.err
}

// fakeSender records replies.
type fakeSender struct {
	chatID int64
	text   string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	f.chatID = chatID
	f.text = text
	return nil
}

func TestReplyForHelp(t *testing.T) {
	b := New(nil, &fakeSender{}, &fakeSaver{})

	for _, cmd := range []string{"/start", "/help", "  /start  "} {
		reply := b.replyFor(context.Background(), cmd)
		if !strings.Contains(reply, "Send me any link") {
			t.Errorf("replyFor(%q) = %q, want help text", cmd, reply)
		}
	}
}

func TestReplyForNoURL(t *testing.T) {
	saver := &fakeSaver{}
	b := New(nil, &fakeSender{}, saver)

	reply := b.replyFor(context.Background(), "just some words")
	if reply != noURLText {
		t.Errorf("reply = %q, want no-url text", reply)
	}
	if saver.gotURL != "" {
		t.Errorf("saver should not be called without a URL, got %q", saver.gotURL)
	}
}

func TestReplyForSaved(t *testing.T) {
	saver := &fakeSaver{outcome: &SaveOutcome{Created: true, Title: "Great Article"}}
	b := New(nil, &fakeSender{}, saver)

	reply := b.replyFor(context.Background(), "look: https://example.com/great")
	if !strings.HasPrefix(reply, savedText) {
		t.Errorf("reply = %q, want saved text", reply)
	}
	if !strings.Contains(reply, "Great Article") {
		t.Errorf("reply = %q, should mention the title", reply)
	}
	if saver.gotURL != "https://example.com/great" {
		t.Errorf("saved URL = %q, want the extracted one", saver.gotURL)
	}
}

func TestReplyForUpdated(t *testing.T) {
	saver := &fakeSaver{outcome: &SaveOutcome{Created: false, Title: "Old Friend"}}
	b := New(nil, &fakeSender{}, saver)

	reply := b.replyFor(context.Background(), "https://example.com/seen-before")
	if !strings.HasPrefix(reply, updatedText) {
		t.Errorf("reply = %q, want updated text", reply)
	}
}

func TestReplyForAPIErrors(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{400, invalidLinkText},
		{401, authErrorText},
		{403, authErrorText},
		{500, serverErrorText},
		{502, serverErrorText},
	}

	for _, tt := range tests {
		saver := &fakeSaver{err: &APIError{Status: tt.status}}
		b := New(nil, &fakeSender{}, saver)

		reply := b.replyFor(context.Background(), "https://example.com/x")
		if reply != tt.want {
			t.Errorf("status %d: reply = %q, want %q", tt.status, reply, tt.want)
		}
	}
}

func TestHandleMessageReplies(t *testing.T) {
	sender := &fakeSender{}
	b := New(nil, sender, &fakeSaver{outcome: &SaveOutcome{Created: true}})

	b.handleMessage(context.Background(), &Message{Chat: Chat{ID: 42}, Text: "https://example.com"})

	if sender.chatID != 42 {
		t.Errorf("reply went to chat %d, want 42", sender.chatID)
	}
	if sender.text == "" {
		t.Error("expected a reply, got none")
	}
}

func TestAPIClientSaveURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/urls" {
			t.Errorf("path = %q, want /api/urls", r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "bot-key" {
			t.Errorf("X-API-Key = %q, want bot-key", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"1","url":"https://example.com","title":"Example"}`))
	}))
	defer server.Close()

	client, err := NewAPIClient(server.URL, "bot-key")
	if err != nil {
		t.Fatalf("NewAPIClient failed: %v", err)
	}

	outcome, err := client.SaveURL(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("SaveURL failed: %v", err)
	}
	if !outcome.Created {
		t.Error("expected Created for a 201 response")
	}
	if outcome.Title != "Example" {
		t.Errorf("Title = %q, want Example", outcome.Title)
	}
}

func TestAPIClientSaveURLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer server.Close()

	client, err := NewAPIClient(server.URL, "wrong-key")
	if err != nil {
		t.Fatalf("NewAPIClient failed: %v", err)
	}

	_, err = client.SaveURL(context.Background(), "https://example.com")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", apiErr.Status)
	}
}
