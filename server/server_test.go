package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/server"
	"github.com/hrygo/hookbot/worker"
)

const testSecret = "s3cret-token"

type recordingDispatcher struct {
	mu   sync.Mutex
	raws []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raws = append(d.raws, string(raw))
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.raws)
}

func newTestServer(t *testing.T, queueDepth int) (*server.Server, *recordingDispatcher, *worker.Pool) {
	t.Helper()
	p := &profile.Profile{
		APISecret: testSecret,
		HookHost:  "bot.example",
		HookPath:  "/hook",
	}
	pool := worker.NewPool(1, 0, queueDepth, nil)
	d := &recordingDispatcher{}
	s := server.NewServer(p, pool, d, metrics.New())
	return s, d, pool
}

func hookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	req.Host = "bot.example"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", testSecret)
	return req
}

func waitDispatched(t *testing.T, d *recordingDispatcher, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d dispatched updates, got %d", n, d.count())
}

func TestValidUpdateAcceptedAndDispatched(t *testing.T) {
	s, d, pool := newTestServer(t, 0)
	pool.Start(context.Background())
	defer pool.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, hookRequest(`{"update_id":1}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	waitDispatched(t, d, 1)
	assert.Equal(t, `{"update_id":1}`, d.raws[0])
}

func TestWrongSecretRejectedNoJob(t *testing.T) {
	s, d, pool := newTestServer(t, 0)
	defer pool.Shutdown()

	req := hookRequest(`{}`)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, 0, d.count())
}

func TestMissingSecretRejected(t *testing.T) {
	s, _, pool := newTestServer(t, 0)
	defer pool.Shutdown()

	req := hookRequest(`{}`)
	req.Header.Del("X-Telegram-Bot-Api-Secret-Token")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationMatrix(t *testing.T) {
	s, _, pool := newTestServer(t, 0)
	defer pool.Shutdown()

	cases := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"wrong method", func(r *http.Request) { r.Method = http.MethodGet }},
		{"wrong path", func(r *http.Request) { r.URL.Path = "/other" }},
		{"wrong host", func(r *http.Request) { r.Host = "evil.example" }},
		{"wrong content type", func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") }},
		{"content type with params", func(r *http.Request) { r.Header.Set("Content-Type", "application/json; charset=utf-8") }},
		{"duplicate content length", func(r *http.Request) {
			r.Header["Content-Length"] = []string{"2", "2"}
		}},
		{"negative content length", func(r *http.Request) {
			r.Header["Content-Length"] = []string{"-1"}
		}},
		{"oversized content length", func(r *http.Request) {
			r.Header["Content-Length"] = []string{"999999999"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := hookRequest(`{}`)
			tc.mutate(req)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rec.Body.Bytes())
		})
	}
}

func TestHostMatchingIgnoresPort(t *testing.T) {
	s, _, pool := newTestServer(t, 0)
	pool.Start(context.Background())
	defer pool.Shutdown()

	req := hookRequest(`{}`)
	req.Host = "BOT.example:8443"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFullQueueRejected(t *testing.T) {
	// Queue depth 1 and no workers: the second delivery cannot be enqueued.
	s, _, pool := newTestServer(t, 1)
	defer pool.Shutdown()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, hookRequest(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, hookRequest(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s, _, pool := newTestServer(t, 0)
	defer pool.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, pool := newTestServer(t, 0)
	defer pool.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hookbot_jobs_submitted_total")
}
