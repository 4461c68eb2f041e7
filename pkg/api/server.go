package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/holo-host/hpos-api/pkg/hosted"
	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/storage"
	"github.com/holo-host/hpos-api/pkg/types"
)

// SLChecker runs one service logger check
type SLChecker interface {
	Run(ctx context.Context) (*slcheck.Result, error)
}

// HostedHapps is the hosted happ surface served under /apps/hosted
type HostedHapps interface {
	List(ctx context.Context, usageInterval int64, quantity int) ([]hosted.HappDetails, error)
	Get(ctx context.Context, happID string, usageInterval int64) (hosted.HappDetails, error)
	Enable(ctx context.Context, happID string) error
	Disable(ctx context.Context, happID string) error
	Logs(ctx context.Context, happID string, days int) ([]hosted.LogRecord, error)
	Install(ctx context.Context, req hosted.InstallRequest) (hosted.InstallResult, error)
	Register(ctx context.Context, req hosted.RegisterRequest) (hosted.HappBundle, error)
	HoloportUsage(ctx context.Context, usageInterval int64) (hosted.UsageResponse, error)
	HoloportID(ctx context.Context) (string, error)
	BillingPreferences(ctx context.Context) (hosted.HappPreferences, error)
}

// Ledger serves the host's billing views
type Ledger interface {
	HostingInvoices(ctx context.Context, set ledger.InvoiceSet) ([]ledger.InvoiceDetail, error)
	Redemptions(ctx context.Context, records ledger.RecordSource) (ledger.Redemptions, error)
	RedeemableHistogram(ctx context.Context) (ledger.RedeemableHistogram, error)
}

// ZomeCaller forwards raw zome calls
type ZomeCaller interface {
	CallZome(ctx context.Context, call types.ZomeCall, out interface{}) error
}

// Deps are the services behind the routes. Journal may be nil.
type Deps struct {
	SLCheck SLChecker
	Hosted  HostedHapps
	Ledger  Ledger
	Records ledger.RecordSource
	Zome    ZomeCaller
	Journal storage.Store
}

// Config tunes the HTTP surface
type Config struct {
	CoreAppID string
	// SLCheckPerMinute limits sl-check triggers per client IP; zero disables the limit
	SLCheckPerMinute int
	// HistoryLimit is the default page size of the sl-check history
	HistoryLimit int
	// Retention bounds the journal after each recorded pass
	Retention    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the hpos-api HTTP gateway
type Server struct {
	deps     Deps
	cfg      Config
	router   chi.Router
	http     *http.Server
	slFlight singleflight.Group
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewServer creates the gateway and mounts every route
func NewServer(deps Deps, cfg Config) *Server {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		logger:   log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	s.mountHealth(r)

	r.Get("/", s.handleAlive)
	r.Get("/core/version", s.handleCoreVersion)

	r.Route("/apps", func(r chi.Router) {
		r.Post("/call_zome", s.handleCallZome)

		r.Route("/hosted", func(r chi.Router) {
			r.Get("/", s.handleListHosted)
			r.With(s.slCheckLimit()).Get("/sl-check", s.handleSLCheck)
			r.Get("/sl-check/history", s.handleSLCheckHistory)
			r.Post("/install", s.handleInstall)
			r.Post("/register", s.handleRegister)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(happIDParam)
				r.Get("/", s.handleGetHosted)
				r.Post("/enable", s.handleEnable)
				r.Post("/disable", s.handleDisable)
				r.Get("/logs", s.handleLogs)
			})
		})
	})

	r.Route("/host", func(r chi.Router) {
		r.Get("/invoices", s.handleInvoices)
		r.Get("/redemptions", s.handleRedemptions)
		r.Get("/redeemable_histogram", s.handleRedeemableHistogram)
		r.Get("/billing_preferences", s.handleBillingPreferences)
	})

	r.Get("/holoport/usage", s.handleHoloportUsage)

	return r
}

func (s *Server) slCheckLimit() func(http.Handler) http.Handler {
	if s.cfg.SLCheckPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.cfg.SLCheckPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "sl-check rate limit exceeded"})
		}),
	)
}

// Handler returns the router for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
