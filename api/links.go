package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	linkeeper "github.com/linkeeper/linkeeper"
	"github.com/linkeeper/linkeeper/models"
)

const (
	minPageSize = 1
	maxPageSize = 100
)

// linkView is the flat wire shape of a saved link.
type linkView struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Source      string    `json:"source,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toView(l models.Link) linkView {
	tags := l.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	return linkView{
		ID:          l.ID,
		URL:         l.URL,
		Title:       l.Metadata.Title,
		Description: l.Metadata.Description,
		Image:       l.Metadata.Image,
		Source:      string(l.Metadata.Source),
		Tags:        tags,
		CreatedAt:   l.CreatedAt,
	}
}

func toViews(links []models.Link) []linkView {
	views := make([]linkView, len(links))
	for i, l := range links {
		views[i] = toView(l)
	}
	return views
}

// pageResponse is the paginated listing envelope.
type pageResponse struct {
	Data       []linkView        `json:"data"`
	Pagination models.Pagination `json:"pagination"`
}

// saveRequest is the POST /api/urls body. Tags is a pointer so an absent
// field (keep existing tags) is distinguishable from an empty array (clear
// them).
type saveRequest struct {
	URL  string    `json:"url"`
	Tags *[]string `json:"tags"`
}

// handleLinks dispatches the /api/urls collection endpoints.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSaveLink(w, r)
	case http.MethodGet:
		s.handleListLinks(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSaveLink saves or refreshes a URL. 201 for a new record, 200 for a
// refresh of an existing one.
func (s *Server) handleSaveLink(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	var tags []string
	if req.Tags != nil {
		for _, tag := range *req.Tags {
			if strings.TrimSpace(tag) == "" {
				respondError(w, http.StatusBadRequest, "tags must be non-empty strings")
				return
			}
		}
		tags = *req.Tags
	}

	result, err := s.links.AddLink(r.Context(), req.URL, tags)
	if err != nil {
		if errors.Is(err, linkeeper.ErrInvalidURL) {
			respondError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save url")
		return
	}

	view := toView(*result.Link)
	view.Image = s.links.ResolveImage(r.Context(), result.Link.Metadata.Image)

	status := http.StatusOK
	outcome := "updated"
	if result.IsNew {
		status = http.StatusCreated
		outcome = "created"
	}
	s.metrics.LinkSaves.WithLabelValues(outcome).Inc()

	respondJSON(w, status, view)
}

// handleListLinks serves the listing endpoint. Plain GET returns the full
// legacy array; any pagination or filter parameter switches to the
// cursor-paginated envelope.
func (s *Server) handleListLinks(w http.ResponseWriter, r *http.Request) {
	params, paginated, err := parseListParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !paginated {
		links, err := s.links.ListAll(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list urls")
			return
		}
		respondJSON(w, http.StatusOK, toViews(links))
		return
	}

	page, err := s.links.ListLinks(r.Context(), params)
	if err != nil {
		if errors.Is(err, linkeeper.ErrInvalidCursor) {
			respondError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to list urls")
		return
	}

	respondJSON(w, http.StatusOK, pageResponse{
		Data:       toViews(page.Data),
		Pagination: page.Pagination,
	})
}

// parseListParams reads the query string. paginated reports whether any
// listing parameter was supplied at all.
func parseListParams(r *http.Request) (params models.ListParams, paginated bool, err error) {
	q := r.URL.Query()

	for _, key := range []string{"limit", "cursor", "sortBy", "order", "search", "source", "tags"} {
		if q.Has(key) {
			paginated = true
			break
		}
	}
	if !paginated {
		return params, false, nil
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, convErr := strconv.Atoi(limitStr)
		if convErr != nil || limit < minPageSize || limit > maxPageSize {
			return params, true, errors.New("limit must be an integer between 1 and 100")
		}
		params.Limit = limit
	}

	params.Cursor = q.Get("cursor")
	params.SortBy = q.Get("sortBy")
	params.Search = q.Get("search")

	switch order := q.Get("order"); order {
	case "", "desc":
		params.Order = models.OrderDesc
	case "asc":
		params.Order = models.OrderAsc
	default:
		return params, true, errors.New("order must be asc or desc")
	}

	if source := q.Get("source"); source != "" {
		src := models.Source(source)
		if !src.Valid() {
			return params, true, errors.New("unknown source")
		}
		params.Source = src
	}

	if tags := q.Get("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				params.Tags = append(params.Tags, tag)
			}
		}
	}

	return params, true, nil
}

// handleLinkByID handles /api/urls/{id}.
func (s *Server) handleLinkByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/urls/")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if r.Method != http.MethodDelete {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.links.DeleteLink(r.Context(), id); err != nil {
		if errors.Is(err, linkeeper.ErrNotFound) {
			respondError(w, http.StatusNotFound, "url not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete url")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "url deleted successfully",
	})
}
