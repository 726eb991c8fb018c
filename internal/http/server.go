package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gradeboard/internal/cache"
	"gradeboard/internal/core"
	"gradeboard/internal/loader"
	applog "gradeboard/internal/log"
	"gradeboard/internal/middleware/ratelimit"
	"gradeboard/internal/middleware/security"
	"gradeboard/internal/middleware/trace"
	"gradeboard/internal/services"
	"gradeboard/internal/session"
	"gradeboard/internal/sheets"
	appweb "gradeboard/web"
)

const (
	defaultDatasetKey    = "default"
	cacheCleanupInterval = 10 * time.Minute
	staticMaxAge         = 3600
)

// Options tunes the server. Zero values pick the defaults of config.Load.
type Options struct {
	MaxUploadBytes   int64
	UploadsPerMinute int
	DatasetCacheTTL  time.Duration
	LoaderOptions    loader.Options
	Publisher        services.Publisher
	SourceName       string
	Logger           *applog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 5 << 20
	}
	if o.UploadsPerMinute <= 0 {
		o.UploadsPerMinute = 30
	}
	if o.DatasetCacheTTL <= 0 {
		o.DatasetCacheTTL = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = applog.WithComponent(applog.ComponentHTTP)
	}
	return o
}

type appMetrics struct {
	uptime        time.Time
	uploads       int64
	uploadErrors  int64
	datasetHits   int64
	datasetMisses int64
}

// Server serves the dashboard pages, charts, JSON series and exports.
type Server struct {
	http.Server
	templates *template.Template
	source    sheets.TableReader
	sessions  *session.Store
	datasets  *services.DatasetService
	opts      Options
	logger    *applog.Logger

	// The default table is cached and concurrent reloads share one read.
	defaultCache *cache.LRUCache[core.Table]
	loadGroup    singleflight.Group
	caches       *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. source provides the table shown to sessions without an upload.
func NewServer(addr string, source sheets.TableReader, sessions *session.Store, opts Options) (*Server, error) {
	opts = opts.withDefaults()
	if opts.SourceName == "" {
		if n, ok := source.(sheets.SourceNamer); ok {
			opts.SourceName = n.SourceName()
		} else {
			opts.SourceName = "default"
		}
	}

	t, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		templates:        t,
		source:           source,
		sessions:         sessions,
		datasets:         services.NewDatasetService(sessions, opts.Publisher, opts.LoaderOptions),
		opts:             opts,
		logger:           opts.Logger,
		defaultCache:     cache.NewLRUCache[core.Table](1, opts.DatasetCacheTTL),
		caches:           cache.NewManager(),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.UploadsPerMinute,
		CleanupInterval:   5 * time.Minute,
		Methods:           []string{http.MethodPost},
	})
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	s.caches.Register(s.defaultCache)
	s.caches.Register(sessions.Cleaner())
	s.caches.StartCleanup(cacheCleanupInterval)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	page := func(h http.HandlerFunc) http.Handler { return security.NoStore(h) }
	mux.Handle("GET /{$}", page(s.handleIndex))
	mux.Handle("GET /division/{slug}", page(s.handleDivision))
	mux.Handle("POST /upload", page(s.handleUpload))
	mux.Handle("POST /reset", page(s.handleReset))

	mux.Handle("GET /charts/distribution.svg", page(s.handleDistributionChart))
	mux.Handle("GET /charts/comparison.svg", page(s.handleComparisonChart))
	mux.Handle("GET /charts/divisions.svg", page(s.handleDivisionsChart))

	mux.Handle("GET /api/distribution", page(s.handleAPIDistribution))
	mux.Handle("GET /api/matrix", page(s.handleAPIMatrix))
	mux.Handle("GET /api/overview", page(s.handleAPIOverview))

	mux.Handle("GET /export.csv", page(s.handleExportCSV))
	mux.Handle("GET /export.xlsx", page(s.handleExportXLSX))

	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	return s.traceMiddleware.Middleware(
		headers.Middleware(
			s.securityDetector.Middleware(s.logger.WithComponent(applog.ComponentSecurity))(limited)))
}

// defaultTable returns the cached default dataset, reading the source at
// most once per TTL however many requests arrive together.
func (s *Server) defaultTable(ctx context.Context) (core.Table, error) {
	if t, ok := s.defaultCache.Get(defaultDatasetKey); ok {
		atomicAdd(&s.appMetrics.datasetHits)
		return t, nil
	}
	atomicAdd(&s.appMetrics.datasetMisses)

	v, err, _ := s.loadGroup.Do(defaultDatasetKey, func() (interface{}, error) {
		if t, ok := s.defaultCache.Get(defaultDatasetKey); ok {
			return t, nil
		}
		// Detached so one cancelled request does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		t, err := s.source.ReadTable(rctx)
		if err != nil {
			return core.Table{}, err
		}
		s.defaultCache.Set(defaultDatasetKey, t)
		s.logger.InfoContext(ctx, "Default dataset loaded",
			applog.FieldSource, s.opts.SourceName,
			applog.FieldRows, t.Len())
		return t, nil
	})
	if err != nil {
		return core.Table{}, fmt.Errorf("read default dataset: %w", err)
	}
	return v.(core.Table), nil
}

// view is the table a request works on with the session it came from.
type view struct {
	Session session.Session
	Table   core.Table
	Source  string
}

// currentView resolves the request's session, creating one when needed, and
// picks its upload or the default dataset.
func (s *Server) currentView(w http.ResponseWriter, r *http.Request) (view, error) {
	sess := s.sessions.Ensure(w, r)
	if sess.Uploaded {
		return view{Session: sess, Table: sess.Table, Source: sess.Source}, nil
	}
	t, err := s.defaultTable(r.Context())
	if err != nil {
		return view{Session: sess}, err
	}
	return view{Session: sess, Table: t, Source: s.opts.SourceName}, nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close stops background routines without waiting for connections. Tests
// that never call ListenAndServe use it.
func (s *Server) Close() error {
	return s.Shutdown(context.Background())
}
