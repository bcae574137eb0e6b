package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/rowgate/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	t.Run("should generate a new request ID if none exists", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := uuid.Parse(httputil.RequestID(r.Context()))
			assert.NoError(t, err, "Request ID should be a valid UUID")
		})

		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		w := httptest.NewRecorder()
		RequestID(handler).ServeHTTP(w, req)

		_, err := uuid.Parse(w.Result().Header.Get(RequestIDHeader))
		assert.NoError(t, err, "Response header X-Request-Id should be a valid UUID")
	})

	t.Run("should preserve existing request ID", func(t *testing.T) {
		existingReqID := uuid.New().String()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, existingReqID, httputil.RequestID(r.Context()))
		})

		ctx := context.WithValue(context.Background(), httputil.RequestIDCtxKey, existingReqID)
		req := httptest.NewRequest("GET", "http://example.com/foo", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		RequestID(handler).ServeHTTP(w, req)

		assert.Equal(t, existingReqID, w.Result().Header.Get(RequestIDHeader))
	})

	t.Run("should accept a valid inbound header", func(t *testing.T) {
		inbound := uuid.New().String()
		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, inbound)
		w := httptest.NewRecorder()
		RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, req)

		assert.Equal(t, inbound, w.Header().Get(RequestIDHeader))
	})

	t.Run("should replace a malformed inbound header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "http://example.com/foo", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(w, req)

		got := w.Header().Get(RequestIDHeader)
		assert.NotEqual(t, "<script>", got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
	})

	t.Run("should handle multiple requests independently", func(t *testing.T) {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(httputil.RequestID(r.Context())))
		}))

		w1 := httptest.NewRecorder()
		handler.ServeHTTP(w1, httptest.NewRequest("GET", "http://example.com/foo1", nil))
		w2 := httptest.NewRecorder()
		handler.ServeHTTP(w2, httptest.NewRequest("GET", "http://example.com/foo2", nil))

		assert.NotEqual(t, w1.Body.String(), w2.Body.String(), "Request IDs should be different for different requests")
	})
}
