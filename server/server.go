// Package server is the webhook ingress: one authenticated endpoint that
// validates each delivery and hands the body to the worker pool, plus
// metrics and health endpoints.
package server

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/worker"
)

// secretTokenHeader is echoed back by Telegram on every webhook delivery.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxBodyBytes bounds a webhook delivery. Updates are small; anything
// larger is not one.
const maxBodyBytes = 1 << 16

// connectionTimeout caps how long one request may occupy a connection.
const connectionTimeout = 3 * time.Second

// Dispatcher consumes one validated raw update off a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte)
}

// Server terminates webhook HTTP traffic. All handler work happens on the
// worker pool; the request goroutine only validates and enqueues.
type Server struct {
	e          *echo.Echo
	profile    *profile.Profile
	pool       *worker.Pool
	dispatcher Dispatcher
	metrics    *metrics.Metrics
}

// NewServer builds the ingress around an echo instance the way the rest of
// the HTTP surface is served. Dispatch jobs receive the pool's long-lived
// context, not the request's; the connection dies long before a job may run.
func NewServer(p *profile.Profile, pool *worker.Pool, d Dispatcher, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = connectionTimeout
	e.Server.WriteTimeout = connectionTimeout

	s := &Server{
		e:          e,
		profile:    p,
		pool:       pool,
		dispatcher: d,
		metrics:    m,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	// Everything else runs the webhook validation chain, so wrong-path and
	// wrong-method requests get the same canned 400 as bad credentials.
	e.Any("/*", s.handleHook)

	return s
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start blocks serving until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := s.profile.ListenAddr()
	slog.Info("server: listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "failed to serve on %s", addr)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// handleHook enforces the full validation chain; a delivery is accepted
// only when every check passes. Responses carry no body either way.
func (s *Server) handleHook(c echo.Context) error {
	r := c.Request()

	if !s.validate(r) {
		if s.metrics != nil {
			s.metrics.UpdatesReceived.WithLabelValues("rejected").Inc()
		}
		return c.NoContent(http.StatusBadRequest)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		if s.metrics != nil {
			s.metrics.UpdatesReceived.WithLabelValues("rejected").Inc()
		}
		return c.NoContent(http.StatusBadRequest)
	}

	raw := body
	if err := s.pool.Submit(func(ctx context.Context) {
		s.dispatcher.Dispatch(ctx, raw)
	}); err != nil {
		slog.Warn("server: update not enqueued", "error", err)
		if s.metrics != nil {
			s.metrics.UpdatesReceived.WithLabelValues("rejected").Inc()
		}
		return c.NoContent(http.StatusBadRequest)
	}

	if s.metrics != nil {
		s.metrics.UpdatesReceived.WithLabelValues("accepted").Inc()
	}
	return c.NoContent(http.StatusOK)
}

// validate runs the header checks. Order matches the cheapest-first rule:
// method, path, host, content type, secret, content length.
func (s *Server) validate(r *http.Request) bool {
	if !strings.EqualFold(r.Method, http.MethodPost) {
		return false
	}
	if r.URL.Path != s.profile.HookPath {
		return false
	}
	if !strings.EqualFold(hostOnly(r.Host), hostOnly(s.profile.HookHost)) {
		return false
	}
	if !strings.EqualFold(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return false
	}
	secret := r.Header.Get(secretTokenHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.profile.APISecret)) != 1 {
		return false
	}
	if !validContentLength(r.Header.Values("Content-Length")) {
		return false
	}
	return true
}

// hostOnly strips a :port suffix so host matching survives local testing
// on non-standard ports.
func hostOnly(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// validContentLength accepts at most one header value holding a
// non-negative integer that fits the body buffer.
func validContentLength(values []string) bool {
	if len(values) == 0 {
		return true // chunked or empty body; the read cap still applies
	}
	if len(values) > 1 {
		return false
	}
	n, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil || n < 0 || n > maxBodyBytes {
		return false
	}
	return true
}
