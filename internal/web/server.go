// Package web serves the upload page, the manual entry form and the JSON
// endpoints behind them.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/salesboard/internal/config"
	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Server is the HTTP server for the sales application.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics http.Handler
	router  *chi.Mux
	server  *http.Server

	limiters []*rateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at the configured metrics path.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes. Paths keep their trailing slash
// for compatibility with existing clients.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	s.router.Get("/", servePage(staticFS, "index.html"))
	s.router.Get("/nhapdulieu/", servePage(staticFS, "entry.html"))
	s.router.Get("/inputform/", servePage(staticFS, "entry.html"))
	s.router.Get("/get_chart_data/", s.handleChartData)
	s.router.Get("/healthz", s.handleHealth)

	// Writes get their own, stricter budget.
	s.router.Group(func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
		}
		r.Post("/import/", s.handleImport)
		r.Post("/inputform/", s.handleEntry)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/imports", s.handleImportHistory)
		r.Get("/stats", s.handleStats)
	})

	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, s.metrics)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and the rate limiter sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func servePage(fsys fs.FS, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := fs.ReadFile(fsys, name)
		if err != nil {
			http.Error(w, "page not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// The pages load d3 from a CDN and use inline scripts.
			if enableCSP {
				w.Header().Set("Content-Security-Policy",
					"default-src 'self'; script-src 'self' 'unsafe-inline' https://d3js.org; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a fixed-window request budget per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func (s *Server) newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	s.limiters = append(s.limiters, rl)
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries once per window until stopped.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware rate limits by the client IP resolved by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondError(w, r, errRateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr when present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
