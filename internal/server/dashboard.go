package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/store"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		clearTokenCookie(w)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		http.Error(w, "Failed to load pages", http.StatusInternalServerError)
		return
	}
	s.renderDashboard(w, "Dashboard", "list.html", dashboard.Summarize(pages, time.Now()))
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := s.store.GetPage(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load page", http.StatusInternalServerError)
		return
	}
	records, err := s.store.GetAnalytics(ctx)
	if err != nil {
		http.Error(w, "Failed to load analytics", http.StatusInternalServerError)
		return
	}

	rec, ok := records[page.ID]
	if !ok {
		rec = store.AnalyticsRecord{Revenue: page.Revenue}
	}
	s.renderDashboard(w, page.Title, "page.html", dashboard.NewDetail(*page, rec, time.Now()))
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, dashboard.Summarize(pages, time.Now()))
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, content string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Render(w, title, content, data); err != nil {
		s.logger.Error("failed to render dashboard", "template", content, "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
