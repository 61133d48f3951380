package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mail-spool/internal/spool"
)

// DefaultMaxBodyBytes bounds a single ingested payload (50 MiB).
const DefaultMaxBodyBytes int64 = 50 << 20

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Name    string
	Version string
	Commit  string
	Date    string
}

// String returns "<name> <version>".
func (b BuildInfo) String() string {
	name, version := b.Name, b.Version
	if name == "" {
		name = "mail-spool"
	}
	if version == "" {
		version = "dev"
	}
	return name + " " + version
}

type Config struct {
	Addr  string // e.g. "127.0.0.1:8080"
	Build BuildInfo
	Auth  AuthConfig
	Spool spool.Config
	Log   LogConfig

	MaxBodyBytes int64
	// RateLimit is the number of requests per minute allowed per client
	// IP. Zero disables limiting.
	RateLimit int
	// TrustProxyHeaders makes X-Forwarded-For and X-Real-IP count as the
	// client address.
	TrustProxyHeaders bool
	Metrics           bool

	// Logger overrides DefaultLogger.
	Logger *Logger
}

func (c Config) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

type Server struct {
	httpServer *http.Server
	cfg        Config
	store      *spool.Store
	lister     *spool.Lister
	gate       Gate
	lockout    *AccountLockout
	limiter    *rateLimiter
	metrics    *Metrics
	log        *Logger
	version    string
}

// New wires the routes around store. The store is not checked here; the
// caller decides whether an unusable spool directory is fatal.
func New(cfg Config, store *spool.Store) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		lister:  store.Lister(),
		gate:    NewGate(cfg.Auth),
		metrics: NewMetrics(cfg.Build),
		log:     cfg.Logger,
		version: cfg.Build.String(),
	}
	if s.log == nil {
		s.log = DefaultLogger
	}
	if cfg.Auth.policy() == AuthPolicyBasic && cfg.Auth.LockoutAttempts > 0 {
		s.lockout = NewAccountLockout(cfg.Auth.LockoutAttempts, cfg.Auth.lockoutDuration(), cfg.Auth.lockoutWindow())
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit, time.Minute, cfg.TrustProxyHeaders)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes builds the router: requestID -> logging -> security headers
// -> rate limit -> routes.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(securityHeadersMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Get("/", s.indexHandler)
	r.Post("/", s.ingestHandler)
	r.Get("/healthz", s.HandleHealth)
	if s.cfg.Metrics {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/mails", func(r chi.Router) {
		r.Get("/logout", s.logoutHandler)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(compressListings)
			r.Get("/", s.listHandler)
			r.Get("/*", s.itemHandler)
		})
	})

	return r
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("listening", map[string]any{
		"addr":    ln.Addr().String(),
		"version": s.version,
		"auth":    string(s.cfg.Auth.policy()),
	})
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}
