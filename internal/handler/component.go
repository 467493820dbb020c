package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/repository"
	"github.com/compopedia/compopedia/internal/service"
)

// Paging defaults and bounds applied to every list request.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ComponentHandler serves the component catalog and owner mutations.
//
// ROUTES:
//
//	GET    /api/components        → HandleList
//	GET    /api/components/{id}   → HandleGet
//	POST   /api/components        → HandleCreate   (auth)
//	PUT    /api/components/{id}   → HandleUpdate   (auth, owner)
//	DELETE /api/components/{id}   → HandleDelete   (auth, owner)
//	GET    /api/me/components     → HandleMine     (auth)
//	GET    /api/categories        → HandleCategories
type ComponentHandler struct {
	catalog    *service.CatalogService
	components *service.ComponentService
	logger     *slog.Logger
}

func NewComponentHandler(catalog *service.CatalogService, components *service.ComponentService, logger *slog.Logger) *ComponentHandler {
	return &ComponentHandler{catalog: catalog, components: components, logger: logger}
}

// ParseListQuery reads catalog parameters from a query string. Page and
// limit are clamped into range; unknown sort keys are rejected.
//
//	?category=ID&search=btn&sortBy=title&sortOrder=asc&page=2&limit=20
func ParseListQuery(values url.Values) (repository.ListQuery, error) {
	q := repository.ListQuery{
		CategoryID: strings.TrimSpace(values.Get("category")),
		Search:     strings.TrimSpace(values.Get("search")),
		SortBy:     repository.SortByCreatedAt,
		SortOrder:  repository.SortDesc,
		Page:       clampInt(values.Get("page"), DefaultPage, 1, 0),
		Limit:      clampInt(values.Get("limit"), DefaultLimit, 1, MaxLimit),
	}
	if q.CategoryID == "" {
		q.CategoryID = strings.TrimSpace(values.Get("categoryId"))
	}

	switch sortBy := values.Get("sortBy"); sortBy {
	case "":
	case repository.SortByCreatedAt, repository.SortByTitle:
		q.SortBy = sortBy
	default:
		return q, apperror.ValidationFailed("sortBy", "sortBy must be createdAt or title")
	}

	switch order := strings.ToLower(values.Get("sortOrder")); order {
	case "":
	case repository.SortAsc, repository.SortDesc:
		q.SortOrder = order
	default:
		return q, apperror.ValidationFailed("sortOrder", "sortOrder must be asc or desc")
	}

	return q, nil
}

// clampInt parses s, falling back to def when s is not a number, and bounds
// the result to [lo, hi]. hi <= 0 means no upper bound.
func clampInt(s string, def, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		n = def
	}
	if n < lo {
		n = lo
	}
	if hi > 0 && n > hi {
		n = hi
	}
	return n
}

// HandleList returns one page of the catalog.
//
// HTTP: GET /api/components
// RESPONSE: {"items": [...], "total": 23, "pageCount": 3, "page": 1, "limit": 10}
func (h *ComponentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.list(w, r, q)
}

// HandleMine lists the caller's own components with the same parameters.
//
// HTTP: GET /api/me/components
// Auth: Required
func (h *ComponentHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	q.OwnerID, _ = auth.UserIDFromContext(r.Context())
	h.list(w, r, q)
}

func (h *ComponentHandler) list(w http.ResponseWriter, r *http.Request, q repository.ListQuery) {
	page, err := h.catalog.List(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet returns one component with owner, category, text blocks and
// images.
//
// HTTP: GET /api/components/{id}
func (h *ComponentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleCreate stores a new component owned by the caller.
//
// HTTP: POST /api/components
// REQUEST BODY:
//
//	{"title": "...", "description": "...", "categoryName": "Buttons",
//	 "textBlocks": [{"content": "...", "language": "css"}],
//	 "images": ["id1", {"url": "/images/id2"}]}
func (h *ComponentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.ComponentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.components.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleUpdate replaces a component owned by the caller.
//
// HTTP: PUT /api/components/{id}
func (h *ComponentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.ComponentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.components.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDelete removes a component owned by the caller.
//
// HTTP: DELETE /api/components/{id}
// RESPONSE: 204 No Content
func (h *ComponentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.components.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCategories lists every category by name.
//
// HTTP: GET /api/categories
func (h *ComponentHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}
