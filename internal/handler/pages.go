package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/compopedia/compopedia/internal/apperror"
	"github.com/compopedia/compopedia/internal/auth"
	"github.com/compopedia/compopedia/internal/model"
	"github.com/compopedia/compopedia/internal/render"
	"github.com/compopedia/compopedia/internal/repository"
	"github.com/compopedia/compopedia/internal/service"
)

// PageHandler serves the server-rendered catalog pages.
//
// TEMPLATE COMPOSITION:
// Each page is parsed together with base.html, which defines the layout and
// pulls the page in through {{template "content" .}}. Pages are parsed into
// separate template sets so their "content" definitions do not collide.
type PageHandler struct {
	catalog *service.CatalogService
	pages   map[string]*template.Template
	logger  *slog.Logger
}

// NewPageHandler parses list.html and detail.html from templates once at
// startup.
func NewPageHandler(catalog *service.CatalogService, renderer *render.Renderer, templates fs.FS, logger *slog.Logger) (*PageHandler, error) {
	pages := make(map[string]*template.Template, 2)
	for _, name := range []string{"list.html", "detail.html"} {
		tmpl, err := template.New(name).
			Funcs(renderer.FuncMap()).
			ParseFS(templates, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &PageHandler{catalog: catalog, pages: pages, logger: logger}, nil
}

type listPage struct {
	Title      string
	SignedIn   bool
	Mine       bool
	Query      repository.ListQuery
	Page       *service.ComponentPage
	Categories []model.Category
	PrevURL    string
	NextURL    string
}

type detailPage struct {
	Title     string
	SignedIn  bool
	Owned     bool
	Component *model.Component
}

// HandleList renders the catalog.
//
// HTTP: GET / and GET /components
// Accepts the same query parameters as GET /api/components, plus mine=1 to
// list only the caller's components.
func (h *PageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		h.renderError(w, err)
		return
	}

	callerID, signedIn := auth.UserIDFromContext(r.Context())
	if r.URL.Query().Get("mine") != "" {
		if !signedIn {
			h.renderError(w, apperror.Unauthenticated("sign in to see your components"))
			return
		}
		q.OwnerID = callerID
	}

	page, err := h.catalog.List(r.Context(), q)
	if err != nil {
		h.renderError(w, err)
		return
	}
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.renderError(w, err)
		return
	}

	data := listPage{
		Title:      "Components",
		SignedIn:   signedIn,
		Mine:       q.OwnerID != "",
		Query:      q,
		Page:       page,
		Categories: cats,
	}
	if q.Page > 1 {
		data.PrevURL = pageURL(q, q.Page-1)
	}
	if q.Page < page.PageCount {
		data.NextURL = pageURL(q, q.Page+1)
	}

	h.render(w, "list.html", data)
}

// HandleDetail renders one component.
//
// HTTP: GET /components/{id}
func (h *PageHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.renderError(w, err)
		return
	}
	callerID, signedIn := auth.UserIDFromContext(r.Context())
	h.render(w, "detail.html", detailPage{
		Title:     c.Title,
		SignedIn:  signedIn,
		Owned:     signedIn && c.UserID == callerID,
		Component: c,
	})
}

// render executes into a buffer first so a template error still yields a
// clean 500 instead of a half-written page.
func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("page write aborted", slog.String("template", name), slog.String("error", err.Error()))
	}
}

func (h *PageHandler) renderError(w http.ResponseWriter, err error) {
	status, _ := errorStatus(err)
	if status == statusClientClosedRequest {
		h.logger.Warn("page request canceled", slog.String("error", err.Error()))
		http.Error(w, "request canceled", status)
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("page failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", status)
		return
	}

	var appErr *apperror.AppError
	msg := http.StatusText(status)
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	http.Error(w, msg, status)
}

// pageURL links to another page of the same query.
func pageURL(q repository.ListQuery, page int) string {
	v := url.Values{}
	if q.CategoryID != "" {
		v.Set("category", q.CategoryID)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.OwnerID != "" {
		v.Set("mine", "1")
	}
	v.Set("sortBy", q.SortBy)
	v.Set("sortOrder", q.SortOrder)
	v.Set("page", strconv.Itoa(page))
	v.Set("limit", strconv.Itoa(q.Limit))
	return "/components?" + v.Encode()
}
