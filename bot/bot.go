package bot

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// urlPattern matches the first http(s) URL embedded anywhere in a message.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Conversation texts.
const (
	helpText = "Send me any link and I'll save it with its title, description and preview image.\n\n" +
		"Commands:\n/start - show this message\n/help - show this message"

	noURLText = "I couldn't find a link in that message. Send me a URL starting with http:// or https://."

	savedText   = "Saved!"
	updatedText = "Already saved - I refreshed its details."

	invalidLinkText = "That doesn't look like a link I can save."
	authErrorText   = "I couldn't authenticate with the link service. Check the bot configuration."
	serverErrorText = "The link service had a problem saving that. Try again in a bit."
)

// Sender delivers replies; *Telegram implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Updater supplies incoming updates; *Telegram implements it.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// Saver submits a URL to the link API; *APIClient implements it.
type Saver interface {
	SaveURL(ctx context.Context, url string) (*SaveOutcome, error)
}

// Bot connects Telegram messages to the link API.
type Bot struct {
	updates Updater
	sender  Sender
	saver   Saver
	offset  int64
}

// New creates a bot over the given Telegram client and link saver.
func New(updates Updater, sender Sender, saver Saver) *Bot {
	return &Bot{
		updates: updates,
		sender:  sender,
		saver:   saver,
	}
}

// Run polls for messages until ctx is cancelled. Poll failures back off
// briefly instead of exiting, so a flaky network does not kill the bot.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("bot started")
	for {
		updates, err := b.updates.GetUpdates(ctx, b.offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("poll failed", "error", err)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, update := range updates {
			b.offset = update.UpdateID + 1
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage processes one incoming message and always replies.
func (b *Bot) handleMessage(ctx context.Context, msg *Message) {
	reply := b.replyFor(ctx, msg.Text)
	if err := b.sender.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		slog.Warn("reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

// replyFor computes the reply text for an incoming message.
func (b *Bot) replyFor(ctx context.Context, text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "/start" || trimmed == "/help" {
		return helpText
	}

	url := ExtractURL(text)
	if url == "" {
		return noURLText
	}

	outcome, err := b.saver.SaveURL(ctx, url)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return replyForStatus(apiErr.Status)
		}
		slog.Warn("save failed", "url", url, "error", err)
		return serverErrorText
	}

	reply := updatedText
	if outcome.Created {
		reply = savedText
	}
	if outcome.Title != "" {
		reply += "\n\n" + outcome.Title
	}
	return reply
}

// replyForStatus maps an API failure class to a user-facing message.
func replyForStatus(status int) string {
	switch {
	case status == 400:
		return invalidLinkText
	case status == 401 || status == 403:
		return authErrorText
	case status >= 500:
		return serverErrorText
	default:
		return serverErrorText
	}
}

// ExtractURL returns the first URL found in text, or "".
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}
