package linkeeper

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/image/webp"

	"github.com/linkeeper/linkeeper/slug"
)

const (
	// archiveTimeout bounds a single image download.
	archiveTimeout = 30 * time.Second

	// maxImageBytes is the hard ceiling on downloaded image size.
	maxImageBytes = 10 * 1024 * 1024

	// archivePrefix is the folder all archived images live under.
	archivePrefix = "images/"
)

// ObjectStore is the durable storage capability the archiver needs: put
// bytes under a key, and find an already-stored key by prefix.
type ObjectStore interface {
	// FindKey returns the first stored key starting with prefix, or "" if
	// none exists.
	FindKey(ctx context.Context, prefix string) (string, error)
	Put(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
}

// Archiver copies preview images into durable object storage and hands back
// the storage key. Archiving is idempotent per (imageURL, ownerURL) pair and
// never fatal: every failure degrades to an empty key.
type Archiver struct {
	store  ObjectStore
	client *http.Client
}

// NewArchiver creates an image archiver backed by store.
func NewArchiver(store ObjectStore) *Archiver {
	return &Archiver{
		store: store,
		client: &http.Client{
			Timeout:   archiveTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Archive downloads imageURL and stores a copy under a key derived from
// (ownerURL, imageURL). If the pair was archived before, the existing key is
// returned without re-downloading. Returns "" when imageURL is empty or when
// anything along the way fails; the owning record is saved without an image.
func (a *Archiver) Archive(ctx context.Context, imageURL, ownerURL string) string {
	if strings.TrimSpace(imageURL) == "" {
		return ""
	}

	keyBase := a.keyBase(imageURL, ownerURL)

	// Repeated submissions of the same pair always target the same key, so a
	// prefix probe is enough to skip the download entirely.
	if existing, err := a.store.FindKey(ctx, keyBase); err != nil {
		slog.Warn("image archive: existence check failed", "key", keyBase, "error", err)
	} else if existing != "" {
		slog.Debug("image archive: already stored", "key", existing)
		return existing
	}

	data, contentType, err := a.download(ctx, imageURL)
	if err != nil {
		slog.Warn("image archive: download failed", "image_url", imageURL, "error", err)
		return ""
	}

	key := keyBase + extensionFromContentType(contentType)

	metadata := map[string]string{
		"origin-url":       ownerURL,
		"source-image-url": imageURL,
		"uploaded-at":      time.Now().UTC().Format(time.RFC3339),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		metadata["width"] = strconv.Itoa(cfg.Width)
		metadata["height"] = strconv.Itoa(cfg.Height)
	}

	if err := a.store.Put(ctx, key, data, contentType, metadata); err != nil {
		slog.Warn("image archive: upload failed", "key", key, "error", err)
		return ""
	}

	slog.Info("image archived", "key", key, "bytes", len(data))
	return key
}

// keyBase derives the stable, extension-less storage key for a pair. The
// hash covers both URLs; the slug tail derives from the image URL only, so
// the whole key stays deterministic.
func (a *Archiver) keyBase(imageURL, ownerURL string) string {
	sum := md5.Sum([]byte(ownerURL + imageURL))
	base := archivePrefix + hex.EncodeToString(sum[:])
	if s := slug.FromImageURL(imageURL); s != "" {
		base += "-" + s
	}
	return base
}

// download fetches the image with size and time bounds and verifies the
// response is actually an image.
func (a *Archiver) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[len(userAgents)-1])
	req.Header.Set("Accept", "image/*")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return nil, "", fmt.Errorf("not an image: content type %q", contentType)
	}

	if resp.ContentLength > maxImageBytes {
		return nil, "", fmt.Errorf("image too large: %d bytes (max %d)", resp.ContentLength, maxImageBytes)
	}

	limited := io.LimitReader(resp.Body, maxImageBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > maxImageBytes {
		return nil, "", fmt.Errorf("image too large: exceeds %d bytes", maxImageBytes)
	}

	return data, contentType, nil
}

// extensionFromContentType maps image MIME types to file extensions,
// defaulting to .jpg for unmapped image types.
func extensionFromContentType(contentType string) string {
	contentType = strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".jpg"
	}
}
