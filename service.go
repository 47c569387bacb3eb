package linkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/linkeeper/linkeeper/models"
)

// Repository persists link records. Implementations report ErrDuplicateURL,
// ErrNotFound and ErrInvalidCursor from the root package.
type Repository interface {
	Save(ctx context.Context, link *models.Link) error
	FindByURL(ctx context.Context, url string) (*models.Link, error)
	FindByID(ctx context.Context, id string) (*models.Link, error)
	FindAll(ctx context.Context) ([]models.Link, error)
	FindWithPagination(ctx context.Context, params models.ListParams) (*models.Page, error)
	SoftDelete(ctx context.Context, id string) error
	Update(ctx context.Context, link *models.Link) error
}

// PlatformFetcher fetches structured metadata from a platform's public API
// by resource id. A nil result means the platform path is unavailable
// (missing key, quota, not found) and the generic fetcher takes over.
type PlatformFetcher interface {
	FetchByResourceID(ctx context.Context, id string) *models.Metadata
}

// ImageResolver turns a storage key into a short-lived accessible URL.
type ImageResolver interface {
	SignedURL(ctx context.Context, key string) (string, error)
}

// Service orchestrates the classifier, fetchers, archiver and repository.
// All dependencies are injected at construction; there is no process-wide
// instance.
type Service struct {
	repo      Repository
	fetcher   *Fetcher
	archiver  *Archiver
	platforms map[models.Source]PlatformFetcher
	images    ImageResolver
}

// NewService wires the add/list/delete use cases. archiver and images may be
// nil when object storage is not configured; links are then saved without
// image enrichment. platforms maps a recognized source to its API fetcher.
func NewService(repo Repository, fetcher *Fetcher, archiver *Archiver, platforms map[models.Source]PlatformFetcher, images ImageResolver) *Service {
	if platforms == nil {
		platforms = map[models.Source]PlatformFetcher{}
	}
	return &Service{
		repo:      repo,
		fetcher:   fetcher,
		archiver:  archiver,
		platforms: platforms,
		images:    images,
	}
}

// AddResult is the outcome of an AddLink call.
type AddResult struct {
	Link  *models.Link
	IsNew bool
}

// AddLink saves or refreshes the record for rawURL. Metadata is assembled in
// full (with empty-field fallbacks for every enrichment failure) before any
// write happens. tags follows preserve-unless-explicit: a nil slice keeps
// the previously stored tags on resubmission.
func (s *Service) AddLink(ctx context.Context, rawURL string, tags []string) (*AddResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByURL(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("lookup by url: %w", err)
	}

	meta := s.enrich(ctx, rawURL)
	meta.Tags = resolveTags(tags, existing)

	if existing != nil {
		return s.refresh(ctx, existing, meta)
	}

	link := &models.Link{
		ID:        newID(),
		URL:       rawURL,
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Save(ctx, link); err != nil {
		if errors.Is(err, ErrDuplicateURL) {
			// Lost a race with a concurrent submission of the same URL;
			// treat it as existing and take the update path.
			racer, lookupErr := s.repo.FindByURL(ctx, rawURL)
			if lookupErr != nil || racer == nil {
				return nil, fmt.Errorf("duplicate url re-read: %w", err)
			}
			meta.Tags = resolveTags(tags, racer)
			return s.refresh(ctx, racer, meta)
		}
		return nil, fmt.Errorf("save link: %w", err)
	}

	return &AddResult{Link: link, IsNew: true}, nil
}

// refresh replaces the stored metadata wholesale, preserving identity and
// creation time.
func (s *Service) refresh(ctx context.Context, existing *models.Link, meta models.Metadata) (*AddResult, error) {
	existing.Metadata = meta
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}
	return &AddResult{Link: existing, IsNew: false}, nil
}

// enrich runs the classifier and picks the metadata strategy: platform API
// when one is available for the detected source, generic page fetch
// otherwise or on platform failure.
func (s *Service) enrich(ctx context.Context, rawURL string) models.Metadata {
	c := Classify(rawURL)

	if pf, ok := s.platforms[c.Source]; ok && c.ResourceID != "" {
		if m := pf.FetchByResourceID(ctx, c.ResourceID); m != nil {
			meta := *m
			meta.Source = c.Source
			// Platform fetchers hand back a raw thumbnail URL; the stored
			// value must be an archive key.
			if meta.Image != "" && s.archiver != nil {
				meta.Image = s.archiver.Archive(ctx, meta.Image, rawURL)
			} else {
				meta.Image = ""
			}
			if meta.Tags == nil {
				meta.Tags = []string{}
			}
			return meta
		}
		slog.Info("platform metadata unavailable, falling back to page fetch", "source", c.Source, "url", rawURL)
	}

	meta := s.fetcher.FetchMetadata(ctx, rawURL)
	meta.Source = c.Source
	return meta
}

// ListLinks returns one page of display-ready records: every stored image
// key is resolved to a signed URL, with failures degrading to an empty
// image rather than failing the page.
func (s *Service) ListLinks(ctx context.Context, params models.ListParams) (*models.Page, error) {
	page, err := s.repo.FindWithPagination(ctx, params)
	if err != nil {
		return nil, err
	}
	for i := range page.Data {
		page.Data[i].Metadata.Image = s.ResolveImage(ctx, page.Data[i].Metadata.Image)
	}
	return page, nil
}

// ListAll returns every non-deleted record newest first, images resolved.
// Retained for the legacy unpaginated response and the re-analysis job.
func (s *Service) ListAll(ctx context.Context) ([]models.Link, error) {
	links, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range links {
		links[i].Metadata.Image = s.ResolveImage(ctx, links[i].Metadata.Image)
	}
	return links, nil
}

// DeleteLink soft-deletes the record. ErrNotFound when the id is unknown or
// already deleted.
func (s *Service) DeleteLink(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// ResolveImage converts a storage key into a short-lived signed URL,
// computed fresh on every read and never persisted. Empty key or resolver
// failure yields "".
func (s *Service) ResolveImage(ctx context.Context, key string) string {
	if key == "" || s.images == nil {
		return ""
	}
	signed, err := s.images.SignedURL(ctx, key)
	if err != nil {
		slog.Warn("image url resolution failed", "key", key, "error", err)
		return ""
	}
	return signed
}

// validateURL accepts only absolute http(s) URLs with a host.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return nil
}

// resolveTags applies the preserve-unless-explicit policy.
func resolveTags(supplied []string, existing *models.Link) []string {
	if supplied != nil {
		return supplied
	}
	if existing != nil && existing.Metadata.Tags != nil {
		return existing.Metadata.Tags
	}
	return []string{}
}

// newID returns a time-ordered unique id so id order follows creation order,
// which keeps id-based cursors aligned with the createdAt sort.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
