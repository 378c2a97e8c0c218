package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/thanhpk/randstr"

	"github.com/shopboost/shopboost/internal/dashboard"
	"github.com/shopboost/shopboost/internal/generator"
	"github.com/shopboost/shopboost/internal/session"
	"github.com/shopboost/shopboost/internal/store"
)

// Options configures a Server.
type Options struct {
	Store    store.Store
	Sessions *session.Manager
	// Generator is optional; without it generate and refine answer 503.
	Generator *generator.Generator
	Products  session.ProductSource

	Port      int
	Token     string // generated when empty
	TokenFile string
	// BeaconRate is the per-client beacon allowance per minute.
	BeaconRate        int
	ReconcileSchedule string
	Logger            *slog.Logger
}

type Server struct {
	store     store.Store
	sessions  *session.Manager
	gen       *generator.Generator
	products  session.ProductSource
	renderer  *dashboard.Renderer
	beacons   *clientLimiter
	cron      *cron.Cron
	logger    *slog.Logger
	port      int
	token     string
	tokenFile string
	router    *chi.Mux
	startTime time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server needs a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager(opts.Store, opts.Products, logger)
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}
	beaconRate := opts.BeaconRate
	if beaconRate <= 0 {
		beaconRate = 20
	}

	renderer, err := dashboard.NewRenderer()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		store:     opts.Store,
		sessions:  sessions,
		gen:       opts.Generator,
		products:  opts.Products,
		renderer:  renderer,
		beacons:   newClientLimiter(beaconRate, beaconRate),
		logger:    logger,
		port:      opts.Port,
		token:     token,
		tokenFile: opts.TokenFile,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	if err := srv.setupJobs(opts.ReconcileSchedule); err != nil {
		return nil, err
	}
	srv.setupRoutes()
	return srv, nil
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(cors)
		r.Options("/b", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
		r.Post("/b", s.handleBeacon)
		r.Get("/sb.js", s.handleScript)
	})

	// Editor API (token via cookie or bearer header)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.apiAuth)

		r.Get("/pages", s.handleListPages)
		r.Post("/pages", s.handleCreatePage)
		r.Get("/pages/{id}", s.handleGetPage)
		r.Delete("/pages/{id}", s.handleDeletePage)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/blocks", s.handleBlocks)
		r.Post("/refine", s.handleRefine)
		r.Get("/credential", s.handleGetCredential)
		r.Put("/credential", s.handlePutCredential)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/", s.handleOpenSession)
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handlePatchSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/blocks", s.handleAddBlock)
			r.Patch("/blocks/{blockID}", s.handleUpdateBlock)
			r.Delete("/blocks/{blockID}", s.handleRemoveBlock)
			r.Post("/blocks/{blockID}/move", s.handleMoveBlock)
			r.Post("/save", s.handleSave)
			r.Post("/sale", s.handleSale)
			r.Post("/generate", s.handleGenerate)
			r.Post("/products", s.handleConnectProducts)
		})
	})

	// Dashboard (protected)
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/pages/{id}", s.handleDashboardPage)
		r.Get("/dashboard/api/pages", s.handleDashboardAPI)
	})
}

// Run serves until ctx is cancelled, then shuts down and flushes open
// sessions.
func (s *Server) Run(ctx context.Context, printMessages bool) error {
	// Write token to file for the otp command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	if printMessages {
		fmt.Println()
		fmt.Printf("shopboost running on http://localhost:%d\n", s.port)
		fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", s.port, s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	if s.cron != nil {
		s.cron.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := s.sessions.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Store() store.Store {
	return s.store
}

func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	return randstr.Hex(8)
}
