package rest

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/edgeflare/rowgate/pkg/config"
	"github.com/edgeflare/rowgate/pkg/db"
	"github.com/edgeflare/rowgate/pkg/docs"
	"github.com/edgeflare/rowgate/pkg/events"
	"github.com/edgeflare/rowgate/pkg/httputil"
	mw "github.com/edgeflare/rowgate/pkg/httputil/middleware"
	"github.com/edgeflare/rowgate/pkg/metrics"
	"go.uber.org/zap"
)

// Server is the application: a router with every route registered, backed by a store.
type Server struct {
	*httputil.Router
	cfg        *config.Config
	store      *db.Store
	docs       *docs.Generator
	publisher  events.Publisher
	logger     *zap.Logger
	proxies    []netip.Prefix
	routerOpts []httputil.RouterOptions
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for access logs and dispatch errors.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithPublisher sets where mutation events go. Defaults to events.Nop.
func WithPublisher(p events.Publisher) ServerOption {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithTrustedProxies sets the peers whose X-Forwarded-For header identifies the client
// for rate limiting. See middleware.ParseTrustedProxies.
func WithTrustedProxies(proxies []netip.Prefix) ServerOption {
	return func(s *Server) {
		s.proxies = proxies
	}
}

// WithRouterOptions passes options through to httputil.NewRouter.
func WithRouterOptions(opts ...httputil.RouterOptions) ServerOption {
	return func(s *Server) {
		s.routerOpts = append(s.routerOpts, opts...)
	}
}

// NewServer builds the router and registers all routes.
func NewServer(cfg *config.Config, store *db.Store, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.docs = docs.NewGenerator(docs.Info{
		Title:   cfg.App.Name,
		Version: cfg.App.Version,
	}, cfg.ServerURL(), cfg.API.Prefix)

	routerOpts := []httputil.RouterOptions{httputil.WithErrorHandler(s.handleError)}
	if cfg.API.MaxBodyBytes > 0 {
		routerOpts = append(routerOpts, httputil.WithMaxBodyBytes(cfg.API.MaxBodyBytes))
	}
	if cfg.API.CORS && len(cfg.API.CORSOrigins) > 0 {
		routerOpts = append(routerOpts, httputil.WithPreflightOrigins(cfg.API.CORSOrigins...))
	}
	s.Router = httputil.NewRouter(append(routerOpts, s.routerOpts...)...)

	s.Use(mw.RequestID, s.middleware()...)
	s.registerRoutes()
	return s
}

func (s *Server) middleware() []httputil.Middleware {
	chain := []httputil.Middleware{
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: s.logger}),
	}
	if s.cfg.API.CORS {
		opts := mw.DefaultCORSOptions()
		if len(s.cfg.API.CORSOrigins) > 0 {
			opts.AllowedOrigins = s.cfg.API.CORSOrigins
		}
		chain = append(chain, mw.CORSWithOptions(opts))
	}
	// limit before auth so failed logins spend tokens too
	if s.cfg.API.RateLimit > 0 {
		chain = append(chain, mw.RateLimit(mw.RateLimitOptions{
			RequestsPerMinute: s.cfg.API.RateLimit,
			TrustedProxies:    s.proxies,
		}))
	}
	if s.cfg.API.BasicAuth != "" {
		chain = append(chain, mw.VerifyBasicAuth(mw.ParseBasicAuthCreds(s.cfg.API.BasicAuth)))
	}
	return chain
}

func (s *Server) registerRoutes() {
	api := s.Group(s.cfg.API.Prefix)
	api.Handle("GET /records/{table}", s.listRecords)
	api.Handle("GET /records/{table}/{id}", s.getRecord)
	api.Handle("POST /records/{table}", s.createRecord)
	api.Handle("PUT /records/{table}/{id}", s.updateRecord)
	api.Handle("DELETE /records/{table}/{id}", s.deleteRecord)
	api.Handle("GET /tables", s.listTables)
	api.Handle("GET /tables/{table}", s.describeTable)
	api.Handle("GET /openapi", s.openAPI)

	if s.cfg.Docs.Enabled {
		s.Handle("GET "+s.cfg.Docs.Path, s.docsUI)
		s.Handle("GET "+s.cfg.Docs.Path+"/swagger.json", s.openAPI)
	}

	s.Handle("GET /health", s.health)
	s.Handle("GET /", s.root)
}

// Close releases the store and the event publisher.
func (s *Server) Close() error {
	return errors.Join(s.publisher.Close(), s.store.Close())
}

// handleError maps store and client errors to their status. Everything else is a 500,
// with the raw message shown only in debug mode.
func (s *Server) handleError(ctx context.Context, req *httputil.Request, err error) *httputil.Response {
	var (
		httpErr  *httputil.Error
		identErr *db.InvalidIdentifierError
	)
	switch {
	case errors.As(err, &httpErr):
		return httputil.DefaultErrorHandler(ctx, req, err)
	case errors.As(err, &identErr):
		return errorResponse(http.StatusBadRequest, identErr.Error())
	case errors.Is(err, db.ErrInvalidBody):
		return errorResponse(http.StatusBadRequest, "Invalid JSON body")
	case errors.Is(err, db.ErrEmptyBody):
		return errorResponse(http.StatusBadRequest, "Request body must be a non-empty JSON object")
	case errors.Is(err, db.ErrNotFound):
		return errorResponse(http.StatusNotFound, "Record not found")
	}

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("route", httputil.RouteTemplate(ctx)),
		zap.Error(err),
	}
	if user, ok := httputil.BasicAuthUser(ctx); ok {
		fields = append(fields, zap.String("user", user))
	}
	mw.LoggerFromContext(ctx).Error("request failed", fields...)

	msg := "Internal server error"
	if s.cfg.App.Debug {
		msg = err.Error()
	}
	return errorResponse(http.StatusInternalServerError, msg)
}

func errorResponse(status int, msg string) *httputil.Response {
	return httputil.JSONResponse(status, httputil.ErrorResponse{Error: msg, Code: status})
}

// publish announces a mutation. Failures are logged and never reach the client.
func (s *Server) publish(ctx context.Context, table string, op events.Op, id any, data map[string]any) {
	e := events.Event{
		Table:     table,
		Op:        op,
		ID:        id,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("table", table),
			zap.String("op", string(op)),
			zap.Error(err),
		)
		metrics.PublishErrors.WithLabelValues(table, string(op)).Inc()
	}
}
