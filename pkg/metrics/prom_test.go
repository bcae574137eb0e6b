package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/records/{table}", "200"))
	ObserveRequest("GET", "/api/records/{table}", 200, 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/records/{table}", "200")))

	before = testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", unmatchedRoute, "404"))
	ObserveRequest("GET", "", 404, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", unmatchedRoute, "404")))
}

func TestObserveQuery(t *testing.T) {
	queries := testutil.ToFloat64(DBQueries.WithLabelValues("list"))
	errs := testutil.ToFloat64(DBErrors.WithLabelValues("list"))

	ObserveQuery("list", time.Millisecond, nil)
	ObserveQuery("list", time.Millisecond, errors.New("boom"))

	assert.Equal(t, queries+2, testutil.ToFloat64(DBQueries.WithLabelValues("list")))
	assert.Equal(t, errs+1, testutil.ToFloat64(DBErrors.WithLabelValues("list")))
}

func TestHandler(t *testing.T) {
	ObserveQuery("get", time.Millisecond, nil)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rowgate_db_queries_total{op="get"}`)
}

func TestStartPrometheusServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	StartPrometheusServer(ctx, &wg, &PromServerOpts{
		Addr:   "127.0.0.1:19100",
		Path:   "/prom",
		Logger: zap.NewNop(),
	})

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://127.0.0.1:19100/prom")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	wg.Wait()
}
