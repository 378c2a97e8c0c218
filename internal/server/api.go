package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/shopify"
	"github.com/shopboost/shopboost/internal/stats"
	"github.com/shopboost/shopboost/internal/store"
)

var (
	errNotOpen       = errors.New("session is not open")
	errNoGenerator   = errors.New("layout generation is not configured")
	errNoProducts    = errors.New("storefront connection is not configured")
	errMissingFields = errors.New("missing required fields")
)

// SessionView is the editor state returned by the session endpoints.
type SessionView struct {
	Page          store.Page        `json:"page"`
	Products      []shopify.Product `json:"products"`
	Dirty         bool              `json:"dirty"`
	Generating    bool              `json:"generating"`
	LastSaveError string            `json:"lastSaveError,omitempty"`
}

func newSessionView(sess *session.Session) SessionView {
	v := SessionView{
		Page:       sess.Page(),
		Products:   sess.Products(),
		Dirty:      sess.Dirty(),
		Generating: sess.Generating(),
	}
	if err := sess.LastSaveError(); err != nil {
		v.LastSaveError = err.Error()
	}
	return v
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, pages)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	page, err := dashboard.CreatePage(r.Context(), s.store)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, page)
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.store.GetPage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.sessions.Discard(id)
	if err := s.store.DeletePage(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AnalyticsResponse pairs the raw records with the page comparison.
type AnalyticsResponse struct {
	Records    map[string]store.AnalyticsRecord `json:"records"`
	Comparison *stats.Result                    `json:"comparison,omitempty"`
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := s.store.GetAnalytics(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := AnalyticsResponse{Records: records}
	if len(pages) >= 2 {
		resp.Comparison = stats.Analyze(pages, records)
	}
	JSON(w, http.StatusOK, resp)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, store.Palette)
}

type refineRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		Error(w, http.StatusServiceUnavailable, errNoGenerator.Error())
		return
	}
	var req refineRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"text": s.gen.Refine(r.Context(), req.Text, req.Instruction)})
}

// credentialView never echoes the token back.
type credentialView struct {
	Domain    string `json:"domain"`
	Connected bool   `json:"connected"`
}

func (s *Server) handleGetCredential(w http.ResponseWriter, r *http.Request) {
	cred, err := s.store.GetCredential(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusOK, credentialView{})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, credentialView{Domain: cred.Domain, Connected: true})
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var cred store.Credential
	if err := decode(r, &cred); err != nil {
		s.fail(w, r, err)
		return
	}
	if cred.Domain == "" || cred.Token == "" {
		Error(w, http.StatusBadRequest, errMissingFields.Error())
		return
	}
	domain := shopify.NormalizeDomain(cred.Domain)
	if err := s.store.SaveCredential(r.Context(), domain, cred.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, credentialView{Domain: domain, Connected: true})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

// openSession looks up an already open session, answering 404 otherwise.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		Error(w, http.StatusNotFound, errNotOpen.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type patchSessionRequest struct {
	Title  *string `json:"title"`
	Status *string `json:"status"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req patchSessionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	var err error
	if req.Title != nil {
		err = sess.SetTitle(*req.Title)
	}
	if err == nil && req.Status != nil {
		switch store.PageStatus(*req.Status) {
		case store.StatusPublished:
			err = sess.Publish()
		case store.StatusDraft:
			err = sess.Unpublish()
		default:
			Error(w, http.StatusBadRequest, "status must be draft or published")
			return
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

type addBlockRequest struct {
	Type string `json:"type"`
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req addBlockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	t, valid := store.ParseBlockType(req.Type)
	if !valid {
		s.fail(w, r, store.ErrUnknownBlockType)
		return
	}
	id, err := sess.AddBlock(t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{"id": id, "session": newSessionView(sess)})
}

type updateBlockRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (s *Server) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req updateBlockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Field == "" {
		Error(w, http.StatusBadRequest, errMissingFields.Error())
		return
	}
	if err := sess.UpdateBlockContent(chi.URLParam(r, "blockID"), req.Field, req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveBlock(chi.URLParam(r, "blockID")); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

type moveBlockRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	var req moveBlockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := sess.MoveBlock(chi.URLParam(r, "blockID"), req.Delta); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := sess.ManualSave(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := sess.SimulateSale(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if s.gen == nil {
		Error(w, http.StatusServiceUnavailable, errNoGenerator.Error())
		return
	}
	var req generateRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := sess.Generate(r.Context(), s.gen, req.Prompt); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

type connectRequest struct {
	Domain string `json:"domain"`
	Token  string `json:"token"`
}

func (s *Server) handleConnectProducts(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if s.products == nil {
		Error(w, http.StatusServiceUnavailable, errNoProducts.Error())
		return
	}
	var req connectRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := sess.ConnectProducts(r.Context(), s.products, shopify.NormalizeDomain(req.Domain), req.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, newSessionView(sess))
}

// HealthResponse reports liveness for probes.
type HealthResponse struct {
	Status        string `json:"status"`
	PagesCount    int    `json:"pages_count"`
	OpenSessions  int    `json:"open_sessions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pages, err := s.store.ListPages(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		PagesCount:    len(pages),
		OpenSessions:  len(s.sessions.IDs()),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}
