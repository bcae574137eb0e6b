package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(body any) HandlerFunc {
	return func(_ context.Context, _ *Request) (*Response, error) {
		return JSONResponse(http.StatusOK, body), nil
	}
}

func serve(r http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestNewRouter(t *testing.T) {
	r := NewRouter()
	require.NotNil(t, r)
	assert.Empty(t, r.Routes())
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", ok(map[string]string{"hello": "world"}))

	w := serve(r, http.MethodGet, "/test", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "world", decode(t, w)["hello"])
}

func TestRouterFirstMatchWins(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /records/{table}", ok("first"))
	r.Handle("GET /records/users", ok("second"))

	w := serve(r, http.MethodGet, "/records/users", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"first"`, w.Body.String())
}

func TestRouterMethodMustMatch(t *testing.T) {
	r := NewRouter()
	r.Handle("POST /items", ok("post"))
	r.Handle("GET /items", ok("get"))

	w := serve(r, http.MethodGet, "/items", "")
	assert.JSONEq(t, `"get"`, w.Body.String())
}

func TestRouterPositionalParams(t *testing.T) {
	r := NewRouter()
	var got []string
	r.Handle("GET /records/{table}/{id}", func(_ context.Context, req *Request) (*Response, error) {
		got = req.Params
		return EmptyResponse(http.StatusNoContent), nil
	})

	w := serve(r, http.MethodGet, "/records/users/42", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"users", "42"}, got)
}

func TestRouterParamDoesNotCrossSlash(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /records/{table}", ok("list"))

	w := serve(r, http.MethodGet, "/records/users/42", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterLiteralsAreQuoted(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /docs/swagger.json", ok("doc"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/docs/swagger.json", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/docs/swaggerXjson", "").Code)
}

func TestRouterOptionsPreflight(t *testing.T) {
	called := false
	r := NewRouter()
	r.Handle("OPTIONS /anything", func(_ context.Context, _ *Request) (*Response, error) {
		called = true
		return nil, nil
	})

	for _, path := range []string{"/anything", "/not/registered"} {
		w := serve(r, http.MethodOptions, path, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
	}
	assert.False(t, called)
}

func TestRouterNotFound(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /known", ok("x"))

	w := serve(r, http.MethodDelete, "/unknown/path", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{
		"error":  "Route not found",
		"method": "DELETE",
		"uri":    "/unknown/path",
	}, decode(t, w))
}

func TestRouterErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    HandlerFunc
		wantStatus int
		wantError  string
	}{
		{
			name: "typed error keeps status",
			handler: func(_ context.Context, _ *Request) (*Response, error) {
				return nil, NewError(http.StatusBadRequest, "bad %s", "input")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "bad input",
		},
		{
			name: "wrapped typed error",
			handler: func(_ context.Context, _ *Request) (*Response, error) {
				return nil, fmt.Errorf("wrap: %w", NewError(http.StatusTooManyRequests, "slow down"))
			},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "slow down",
		},
		{
			name: "plain error is 500",
			handler: func(_ context.Context, _ *Request) (*Response, error) {
				return nil, errors.New("boom")
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "boom",
		},
		{
			name: "panic is recovered",
			handler: func(_ context.Context, _ *Request) (*Response, error) {
				panic("kaput")
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "panic: kaput",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter()
			r.Handle("GET /fail", tt.handler)

			w := serve(r, http.MethodGet, "/fail", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantError, body["error"])
			assert.EqualValues(t, tt.wantStatus, body["code"])
		})
	}
}

func TestRouterCustomErrorHandler(t *testing.T) {
	r := NewRouter(WithErrorHandler(func(_ context.Context, req *Request, err error) *Response {
		return JSONResponse(http.StatusServiceUnavailable, ErrorResponse{Error: "redacted", Code: 503})
	}))
	r.Handle("GET /fail", func(_ context.Context, _ *Request) (*Response, error) {
		return nil, errors.New("secret")
	})

	w := serve(r, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "redacted", decode(t, w)["error"])
}

func TestRouterMiddleware(t *testing.T) {
	r := NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Test", "true")
			next.ServeHTTP(w, req)
		})
	})
	r.Handle("GET /test", ok("x"))

	w := serve(r, http.MethodGet, "/test", "")
	assert.Equal(t, "true", w.Header().Get("X-Test"))

	// middleware also wraps unmatched requests
	w = serve(r, http.MethodGet, "/missing", "")
	assert.Equal(t, "true", w.Header().Get("X-Test"))
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	api := r.Group("/api")
	api.Handle("GET /v1/{name}", func(_ context.Context, req *Request) (*Response, error) {
		return JSONResponse(http.StatusOK, req.Param(0)), nil
	})

	w := serve(r, http.MethodGet, "/api/v1/test", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"test"`, w.Body.String())
	assert.Equal(t, "/api/v1/{name}", r.Routes()[0].Template)
}

func TestRouterRequestBody(t *testing.T) {
	r := NewRouter(WithMaxBodyBytes(8))
	var got string
	r.Handle("POST /echo", func(_ context.Context, req *Request) (*Response, error) {
		got = string(req.Body)
		return EmptyResponse(http.StatusCreated), nil
	})

	w := serve(r, http.MethodPost, "/echo", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"a":1}`, got)

	w = serve(r, http.MethodPost, "/echo", `{"a":12345}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouterObserver(t *testing.T) {
	type call struct {
		method, template string
		status           int
	}
	var calls []call
	r := NewRouter(WithObserver(func(method, template string, status int, _ time.Duration) {
		calls = append(calls, call{method, template, status})
	}))
	r.Handle("GET /records/{table}", ok("x"))

	serve(r, http.MethodGet, "/records/users", "")
	serve(r, http.MethodGet, "/nope", "")

	assert.Equal(t, []call{
		{"GET", "/records/{table}", http.StatusOK},
		{"GET", "", http.StatusNotFound},
	}, calls)
}

func TestRouterObserverPanic(t *testing.T) {
	var template string
	var status int
	r := NewRouter(WithObserver(func(_, tmpl string, st int, _ time.Duration) {
		template, status = tmpl, st
	}))
	r.Handle("GET /records/{table}", func(_ context.Context, _ *Request) (*Response, error) {
		panic("kaput")
	})

	w := serve(r, http.MethodGet, "/records/users", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "/records/{table}", template)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRouterErrorHandlerSeesRoute(t *testing.T) {
	var got string
	r := NewRouter(WithErrorHandler(func(ctx context.Context, req *Request, err error) *Response {
		got = RouteTemplate(ctx)
		return DefaultErrorHandler(ctx, req, err)
	}))
	r.Handle("PUT /records/{table}/{id}", func(_ context.Context, _ *Request) (*Response, error) {
		return nil, errors.New("boom")
	})

	w := serve(r, http.MethodPut, "/records/t/7", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "/records/{table}/{id}", got)
}

func TestRouterPreflightOrigins(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{name: "listed origin is echoed", origins: []string{"https://a.example", "https://b.example"}, origin: "https://b.example", want: "https://b.example"},
		{name: "unlisted origin gets nothing", origins: []string{"https://a.example"}, origin: "https://evil.example", want: ""},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example", want: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(WithPreflightOrigins(tt.origins...))
			req := httptest.NewRequest(http.MethodOptions, "/records/users", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", w.Header().Get("Vary"))
		})
	}
}

func TestRouterListenAndServe(t *testing.T) {
	r := NewRouter()
	r.Handle("GET /test", ok("x"))

	serverAddr := ":8081"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.ListenAndServe(serverAddr); err != http.ErrServerClosed {
			t.Logf("expected server to close, got %v", err)
		}
	}()

	time.Sleep(100 * time.Millisecond) // Give the server a moment to start

	resp, err := http.Get("http://localhost:8081/test")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, r.Shutdown(ctx))
	wg.Wait()
}

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter()
	for i := 0; i < 20; i++ {
		r.Handle(fmt.Sprintf("GET /r%d/{id}", i), ok("x"))
	}
	r.Handle("GET /records/{table}/{id}", ok("x"))

	req := httptest.NewRequest("GET", "/records/users/1", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
}
