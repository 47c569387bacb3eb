package linkeeper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkeeper/linkeeper/models"
)

// fakeRepo is an in-memory Repository. failNextSave plus hideNextFind
// simulate losing a unique-index race to a concurrent writer.
type fakeRepo struct {
	mu           sync.Mutex
	links        map[string]models.Link
	failNextSave error
	hideNextFind bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{links: map[string]models.Link{}}
}

func (r *fakeRepo) Save(_ context.Context, link *models.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextSave != nil {
		err := r.failNextSave
		r.failNextSave = nil
		return err
	}
	for _, l := range r.links {
		if l.URL == link.URL && l.DeletedAt == nil {
			return ErrDuplicateURL
		}
	}
	r.links[link.ID] = *link
	return nil
}

func (r *fakeRepo) Update(_ context.Context, link *models.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.links[link.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrNotFound
	}
	existing.Metadata = link.Metadata
	r.links[link.ID] = existing
	return nil
}

func (r *fakeRepo) FindByURL(_ context.Context, url string) (*models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideNextFind {
		r.hideNextFind = false
		return nil, nil
	}
	for _, l := range r.links {
		if l.URL == url && l.DeletedAt == nil {
			link := l
			return &link, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.DeletedAt != nil {
		return nil, ErrNotFound
	}
	link := l
	return &link, nil
}

func (r *fakeRepo) FindAll(_ context.Context) ([]models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Link
	for _, l := range r.links {
		if l.DeletedAt == nil {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) FindWithPagination(ctx context.Context, params models.ListParams) (*models.Page, error) {
	all, _ := r.FindAll(ctx)
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	page := &models.Page{Data: all, Pagination: models.Pagination{HasMore: hasMore, Count: len(all)}}
	if hasMore && len(all) > 0 {
		page.Pagination.NextCursor = all[len(all)-1].ID
	}
	return page, nil
}

func (r *fakeRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok || l.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	l.DeletedAt = &now
	r.links[id] = l
	return nil
}

// fakePlatform scripts a platform API response.
type fakePlatform struct {
	meta  *models.Metadata
	calls int
}

func (f *fakePlatform) FetchByResourceID(context.Context, string) *models.Metadata {
	f.calls++
	return f.meta
}

// fakeResolver signs keys or fails.
type fakeResolver struct {
	err error
}

func (f *fakeResolver) SignedURL(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example.com/" + key, nil
}

func metaPageServer(t *testing.T, title string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><meta property="og:title" content="%s"></head></html>`, title)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAddLinkInvalidURL(t *testing.T) {
	svc := NewService(newFakeRepo(), NewFetcher(nil), nil, nil, nil)

	for _, bad := range []string{"", "not a url", "/relative", "ftp://example.com/file", "https://"} {
		if _, err := svc.AddLink(context.Background(), bad, nil); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("AddLink(%q) error = %v, want ErrInvalidURL", bad, err)
		}
	}
}

func TestAddLinkNew(t *testing.T) {
	pages := metaPageServer(t, "Fresh Page")
	repo := newFakeRepo()
	svc := NewService(repo, NewFetcher(nil), nil, nil, nil)

	result, err := svc.AddLink(context.Background(), pages.URL+"/a", nil)
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if !result.IsNew {
		t.Error("expected IsNew for a first save")
	}
	if result.Link.Metadata.Title != "Fresh Page" {
		t.Errorf("Title = %q, want Fresh Page", result.Link.Metadata.Title)
	}
	if result.Link.ID == "" || result.Link.CreatedAt.IsZero() {
		t.Errorf("identity not filled in: %+v", result.Link)
	}
	if result.Link.Metadata.Tags == nil {
		t.Error("Tags should never be nil")
	}
}

func TestAddLinkResubmit(t *testing.T) {
	pages := metaPageServer(t, "Same Page")
	repo := newFakeRepo()
	svc := NewService(repo, NewFetcher(nil), nil, nil, nil)
	ctx := context.Background()
	url := pages.URL + "/a"

	first, err := svc.AddLink(ctx, url, []string{"keep-me"})
	if err != nil {
		t.Fatalf("first AddLink failed: %v", err)
	}

	second, err := svc.AddLink(ctx, url, nil)
	if err != nil {
		t.Fatalf("second AddLink failed: %v", err)
	}

	if second.IsNew {
		t.Error("resubmission should not be new")
	}
	if second.Link.ID != first.Link.ID {
		t.Errorf("id changed on resubmit: %q vs %q", second.Link.ID, first.Link.ID)
	}
	if !second.Link.CreatedAt.Equal(first.Link.CreatedAt) {
		t.Error("createdAt changed on resubmit")
	}
	if len(second.Link.Metadata.Tags) != 1 || second.Link.Metadata.Tags[0] != "keep-me" {
		t.Errorf("tags = %v, want preserved [keep-me]", second.Link.Metadata.Tags)
	}

	// Explicit tags replace, including an explicit empty set.
	third, err := svc.AddLink(ctx, url, []string{})
	if err != nil {
		t.Fatalf("third AddLink failed: %v", err)
	}
	if len(third.Link.Metadata.Tags) != 0 {
		t.Errorf("tags = %v, want cleared by explicit empty set", third.Link.Metadata.Tags)
	}
}

func TestAddLinkDuplicateRace(t *testing.T) {
	pages := metaPageServer(t, "Raced Page")
	repo := newFakeRepo()
	svc := NewService(repo, NewFetcher(nil), nil, nil, nil)
	ctx := context.Background()
	url := pages.URL + "/a"

	// A concurrent writer slips the record in between our existence check
	// and insert: the first lookup sees nothing, the insert collides, the
	// re-read finds the winner.
	winner := models.Link{
		ID:        "winner-id",
		URL:       url,
		Metadata:  models.Metadata{Title: "Winner", Tags: []string{"theirs"}},
		CreatedAt: time.Now().Add(-time.Minute),
	}
	repo.links[winner.ID] = winner
	repo.hideNextFind = true
	repo.failNextSave = ErrDuplicateURL

	result, err := svc.AddLink(ctx, url, nil)
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if result.IsNew {
		t.Error("race loser should report an update, not a create")
	}
	if result.Link.ID != "winner-id" {
		t.Errorf("id = %q, want the winner's record", result.Link.ID)
	}
	if len(result.Link.Metadata.Tags) != 1 || result.Link.Metadata.Tags[0] != "theirs" {
		t.Errorf("tags = %v, want the winner's preserved", result.Link.Metadata.Tags)
	}
}

func TestAddLinkPlatformPath(t *testing.T) {
	thumb, _ := imageServer(t, "image/png", tinyPNG)
	store := newMemStore()
	archiver := NewArchiver(store)

	platform := &fakePlatform{meta: &models.Metadata{
		Title:       "Video Title",
		Description: "Video description",
		Image:       thumb.URL + "/maxresdefault.jpg",
		Tags:        []string{"music"},
	}}

	repo := newFakeRepo()
	svc := NewService(repo, NewFetcher(archiver), archiver,
		map[models.Source]PlatformFetcher{models.SourceYouTube: platform}, nil)

	result, err := svc.AddLink(context.Background(), "https://youtu.be/abc123", nil)
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if platform.calls != 1 {
		t.Errorf("platform fetcher called %d times, want 1", platform.calls)
	}
	if result.Link.Metadata.Title != "Video Title" {
		t.Errorf("Title = %q, want Video Title", result.Link.Metadata.Title)
	}
	if result.Link.Metadata.Source != models.SourceYouTube {
		t.Errorf("Source = %q, want youtube", result.Link.Metadata.Source)
	}
	// The raw thumbnail URL must have been archived into a storage key.
	if !strings.HasPrefix(result.Link.Metadata.Image, "images/") {
		t.Errorf("Image = %q, want an archive key", result.Link.Metadata.Image)
	}
}

func TestAddLinkPlatformFallback(t *testing.T) {
	// Platform returns nothing; the page fetch takes over.
	platform := &fakePlatform{meta: nil}
	pages := metaPageServer(t, "Fallback Title")

	repo := newFakeRepo()
	svc := NewService(repo, NewFetcher(nil), nil,
		map[models.Source]PlatformFetcher{models.SourceYouTube: platform}, nil)

	// A YouTube URL that the page server will answer for: use the page
	// server's host, classified as unknown, to keep the fetch local; the
	// platform path needs a real youtube URL, so check both pieces
	// separately.
	result, err := svc.AddLink(context.Background(), pages.URL+"/watch", nil)
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if result.Link.Metadata.Title != "Fallback Title" {
		t.Errorf("Title = %q, want Fallback Title", result.Link.Metadata.Title)
	}
	if platform.calls != 0 {
		t.Errorf("platform fetcher should not run for unrecognized hosts, got %d calls", platform.calls)
	}
}

func TestListLinksResolvesImages(t *testing.T) {
	repo := newFakeRepo()
	repo.links["l1"] = models.Link{
		ID:        "l1",
		URL:       "https://example.com/a",
		Metadata:  models.Metadata{Image: "images/abc.png", Tags: []string{}},
		CreatedAt: time.Now(),
	}

	svc := NewService(repo, NewFetcher(nil), nil, nil, &fakeResolver{})

	page, err := svc.ListLinks(context.Background(), models.ListParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}
	if got := page.Data[0].Metadata.Image; got != "https://signed.example.com/images/abc.png" {
		t.Errorf("Image = %q, want signed URL", got)
	}
}

func TestListLinksResolverFailureDegrades(t *testing.T) {
	repo := newFakeRepo()
	repo.links["l1"] = models.Link{
		ID:        "l1",
		URL:       "https://example.com/a",
		Metadata:  models.Metadata{Image: "images/abc.png", Tags: []string{}},
		CreatedAt: time.Now(),
	}

	svc := NewService(repo, NewFetcher(nil), nil, nil, &fakeResolver{err: errors.New("boom")})

	page, err := svc.ListLinks(context.Background(), models.ListParams{Limit: 10})
	if err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}
	if got := page.Data[0].Metadata.Image; got != "" {
		t.Errorf("Image = %q, want empty on resolver failure", got)
	}
}

func TestDeleteLink(t *testing.T) {
	repo := newFakeRepo()
	repo.links["l1"] = models.Link{ID: "l1", URL: "https://example.com/a", CreatedAt: time.Now()}

	svc := NewService(repo, NewFetcher(nil), nil, nil, nil)
	ctx := context.Background()

	if err := svc.DeleteLink(ctx, "l1"); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if err := svc.DeleteLink(ctx, "l1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteLink(ctx, "never-existed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id error = %v, want ErrNotFound", err)
	}
}
