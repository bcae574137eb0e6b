package httputil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/rowgate/pkg/util"
)

// Middleware defines a function type that represents a middleware. Middleware functions wrap an
// http.Handler to modify or enhance its behavior.
type Middleware func(http.Handler) http.Handler

// HandlerFunc handles a matched route. It returns the response to send instead of writing it.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// ErrorHandler turns an error returned (or a panic raised) during dispatch into a response.
type ErrorHandler func(ctx context.Context, req *Request, err error) *Response

// Observer is called once per served request with the matched route template
// ("" when no route matched).
type Observer func(method, template string, status int, elapsed time.Duration)

// RouterOptions is a function type that represents options to configure a Router.
type RouterOptions func(*Router)

const defaultMaxBodyBytes = 10 << 20

// placeholderPattern matches `{name}` segments in a route template.
var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

var preflightHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, Authorization",
}

// Route is a registered (method, template) pair. Routes are immutable once registered.
type Route struct {
	Method   string
	Template string
	Params   []string
	pattern  *regexp.Regexp
	handler  HandlerFunc
}

// RouteNotFound is the body returned when no route matches.
type RouteNotFound struct {
	Error  string `json:"error"`
	Method string `json:"method"`
	URI    string `json:"uri"`
}

// routeTable is shared by a router and all of its groups.
type routeTable struct {
	server       *http.Server
	onError      ErrorHandler
	observer     Observer
	routes       []*Route
	middleware   []Middleware
	origins      []string
	maxBodyBytes int64
	mu           sync.RWMutex
}

// Router maps (method, path template) pairs to handlers. Routes are matched in
// registration order and the first match wins.
type Router struct {
	*routeTable
	prefix string
}

// NewRouter creates a new instance of Router with the given options.
func NewRouter(opts ...RouterOptions) *Router {
	r := &Router{
		routeTable: &routeTable{
			server:       &http.Server{}, // Initialize with default server
			onError:      DefaultErrorHandler,
			maxBodyBytes: defaultMaxBodyBytes,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithServerOptions returns a RouterOptions function that sets custom http.Server options.
func WithServerOptions(opts ...func(*http.Server)) RouterOptions {
	return func(r *Router) {
		for _, opt := range opts {
			opt(r.server)
		}
	}
}

// WithTLS provides a simplified way to enable HTTPS in your router.
func WithTLS(certFile, keyFile string) RouterOptions {
	return func(r *Router) {
		r.server.TLSConfig = &tls.Config{}               // Initialize TLS config
		r.server.TLSConfig.MinVersion = tls.VersionTLS12 // Enforce secure TLS version (optional)

		if certFile == "" || keyFile == "" {
			certFile, keyFile = "./tls/tls.crt", "./tls/tls.key"
		}

		cert, err := util.LoadOrGenerateCert(certFile, keyFile)
		if err != nil {
			log.Fatalf("error loading TLS certificates: %v", err)
		}

		r.server.TLSConfig.Certificates = []tls.Certificate{cert}
	}
}

// WithErrorHandler replaces DefaultErrorHandler.
func WithErrorHandler(h ErrorHandler) RouterOptions {
	return func(r *Router) {
		r.onError = h
	}
}

// WithObserver registers a per-request observer, e.g. for metrics.
func WithObserver(o Observer) RouterOptions {
	return func(r *Router) {
		r.observer = o
	}
}

// WithMaxBodyBytes limits how much of a request body is read.
func WithMaxBodyBytes(n int64) RouterOptions {
	return func(r *Router) {
		r.maxBodyBytes = n
	}
}

// WithPreflightOrigins restricts the Access-Control-Allow-Origin sent on OPTIONS responses
// to the listed origins. Without it every preflight is answered with "*".
func WithPreflightOrigins(origins ...string) RouterOptions {
	return func(r *Router) {
		r.origins = origins
	}
}

// Use adds one or more middleware to the router. At least one middleware must be provided.
// Middleware functions are applied in the order they are added, and wrap every route.
func (r *Router) Use(mw Middleware, additional ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
	if len(additional) > 0 {
		r.middleware = append(r.middleware, additional...)
	}
}

// Group creates a sub-router with a specified prefix. Routes registered on the group
// share the parent's route table, so registration order is global.
func (r *Router) Group(prefix string) *Router {
	return &Router{
		routeTable: r.routeTable,
		prefix:     r.prefix + prefix,
	}
}

// Handle registers a handler for a `METHOD /template` pattern. The template may contain
// `{name}` placeholders, each matching one run of non-slash characters.
// The handler `METHOD /pattern` on a route group with a /prefix resolves to `METHOD /prefix/pattern`
func (r *Router) Handle(methodPattern string, handler HandlerFunc) {
	method, template, ok := strings.Cut(methodPattern, " ")
	if !ok {
		log.Fatalf("invalid method pattern: %s", methodPattern)
	}
	r.Register(method, template, handler)
}

// Register stores a route for method and template (relative to the router's prefix).
func (r *Router) Register(method, template string, handler HandlerFunc) *Route {
	full := r.prefix + template
	route := &Route{
		Method:   strings.ToUpper(method),
		Template: full,
		Params:   templateParams(full),
		pattern:  compileTemplate(full),
		handler:  handler,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	return route
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Route(nil), r.routes...)
}

// compileTemplate anchors the template and turns each placeholder into a capture group.
// Literal text is quoted so that characters like "." only match themselves.
func compileTemplate(template string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		b.WriteString("([^/]+)")
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func templateParams(template string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		names = append(names, m[1])
	}
	return names
}

// Match reports whether the route matches method and path, returning the positional params.
func (rt *Route) Match(method, path string) ([]string, bool) {
	if rt.Method != method {
		return nil, false
	}
	m := rt.pattern.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// dispatch resolves req against the route table and invokes the first matching handler.
// OPTIONS requests are answered directly without a route lookup.
func (r *Router) dispatch(ctx context.Context, req *Request) (res *Response, template string, err error) {
	if req.Method == http.MethodOptions {
		return r.preflight(req), "", nil
	}

	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	for _, route := range routes {
		params, ok := route.Match(req.Method, req.Path)
		if !ok {
			continue
		}
		req.Params = params
		template = route.Template

		defer func() {
			if p := recover(); p != nil {
				res, err = nil, fmt.Errorf("panic: %v", p)
			}
		}()

		ctx = context.WithValue(ctx, RouteCtxKey, route.Template)
		res, err = route.handler(ctx, req)
		if err == nil && res == nil {
			res = EmptyResponse(http.StatusOK)
		}
		return res, template, err
	}

	return JSONResponse(http.StatusNotFound, RouteNotFound{
		Error:  "Route not found",
		Method: req.Method,
		URI:    req.Path,
	}), "", nil
}

func (r *Router) preflight(req *Request) *Response {
	h := make(http.Header, len(preflightHeaders)+1)
	for k, v := range preflightHeaders {
		h.Set(k, v)
	}
	if r.origins != nil {
		h.Del("Access-Control-Allow-Origin")
		origin := req.Header.Get("Origin")
		if allowed := AllowedOrigin(r.origins, origin); allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
		}
		h.Set("Vary", "Origin")
	}
	return &Response{Status: http.StatusOK, Header: h}
}

// AllowedOrigin returns the Access-Control-Allow-Origin value for a request from origin:
// "*" when the list contains "*", origin itself when it is listed, and "" otherwise.
func AllowedOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
	}
	if origin == "" {
		return ""
	}
	for _, o := range allowed {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// DefaultErrorHandler reports an *Error with its own status and anything else as a 500
// carrying the raw error message.
func DefaultErrorHandler(_ context.Context, _ *Request, err error) *Response {
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return JSONResponse(httpErr.Status, ErrorResponse{Error: httpErr.Message, Code: httpErr.Status})
	}
	return JSONResponse(http.StatusInternalServerError, ErrorResponse{
		Error: err.Error(),
		Code:  http.StatusInternalServerError,
	})
}

// ServeHTTP applies the router middleware and serves the request.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.applyMiddleware().ServeHTTP(w, req)
}

func (r *Router) serve(w http.ResponseWriter, hr *http.Request) {
	start := time.Now()
	ctx := hr.Context()

	req := &Request{
		Method: hr.Method,
		Path:   hr.URL.Path,
		Query:  hr.URL.Query(),
		Header: hr.Header,
	}

	var (
		res      *Response
		template string
		err      error
	)
	req.Body, err = readBody(hr, r.maxBodyBytes)
	if err == nil {
		res, template, err = r.dispatch(ctx, req)
	}
	if err != nil {
		if template != "" {
			ctx = context.WithValue(ctx, RouteCtxKey, template)
		}
		res = r.onError(ctx, req, err)
	}

	Write(w, res)

	if r.observer != nil {
		r.observer(req.Method, template, res.Status, time.Since(start))
	}
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, NewError(http.StatusBadRequest, "Failed to read request body")
	}
	if int64(len(body)) > limit {
		return nil, NewError(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	return body, nil
}

// ListenAndServe starts the server, automatically choosing between HTTP and HTTPS based on TLS config.
func (r *Router) ListenAndServe(addr string) error {
	r.server.Addr = addr
	r.server.Handler = r

	if r.server.TLSConfig != nil {
		// HTTPS
		return r.server.ListenAndServeTLS("", "") // Use empty strings to auto-detect cert/key in TLSConfig
	}
	// HTTP
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// applyMiddleware applies middleware to the dispatcher and returns a new http.Handler.
func (r *Router) applyMiddleware() http.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handler http.Handler = http.HandlerFunc(r.serve)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	return handler
}
