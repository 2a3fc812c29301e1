// Package runner supervises out-of-process command handlers.
package runner

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/hookbot/internal/metrics"
)

// DefaultCapacity bounds the number of live unreaped handler processes.
const DefaultCapacity = 64

// ErrAtCapacity is returned when every supervisor slot is taken.
var ErrAtCapacity = errors.New("runner: handler slots exhausted")

// Supervisor spawns handler executables out of a fixed directory, keeps the
// active set bounded, and reaps children asynchronously. Callers never hold
// raw process handles; the supervisor owns them until the child exits.
type Supervisor struct {
	dir      string
	env      []string
	capacity int64

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[int]*exec.Cmd // pid -> running command

	metrics *metrics.Metrics
}

// NewSupervisor creates a supervisor rooted at dir. env is the complete
// environment handed to children (curation happens at the call site).
func NewSupervisor(dir string, env []string, capacity int, m *metrics.Metrics) *Supervisor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Supervisor{
		dir:      dir,
		env:      env,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
		active:   make(map[int]*exec.Cmd),
		metrics:  m,
	}
}

// Spawn starts file from the supervisor's directory with the given argv
// tail. It never blocks: when all slots are taken it rejects immediately.
// Worker threads may call Spawn concurrently.
func (s *Supervisor) Spawn(file string, args []string) (int, error) {
	if file == "" || strings.ContainsAny(file, "/\\") || strings.Contains(file, "..") {
		return 0, errors.Errorf("runner: invalid handler file name %q", file)
	}
	if !s.sem.TryAcquire(1) {
		if s.metrics != nil {
			s.metrics.SpawnsRejected.Inc()
		}
		return 0, ErrAtCapacity
	}

	path := filepath.Join(s.dir, file)
	cmd := exec.Command(path, args...)
	cmd.Env = s.env
	cmd.Dir = s.dir

	if err := cmd.Start(); err != nil {
		s.sem.Release(1)
		return 0, errors.Wrapf(err, "runner: failed to spawn %s", path)
	}
	pid := cmd.Process.Pid

	s.mu.Lock()
	s.active[pid] = cmd
	n := len(s.active)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SpawnsStarted.Inc()
		s.metrics.SpawnsActive.Set(float64(n))
	}
	slog.Debug("runner: spawned handler", "file", file, "pid", pid)

	s.wg.Add(1)
	go s.reap(pid, cmd)
	return pid, nil
}

// reap waits for one child and returns its slot. Exit codes are recorded in
// the log and otherwise uninterpreted.
func (s *Supervisor) reap(pid int, cmd *exec.Cmd) {
	defer s.wg.Done()
	err := cmd.Wait()

	s.mu.Lock()
	delete(s.active, pid)
	n := len(s.active)
	s.mu.Unlock()

	s.sem.Release(1)
	if s.metrics != nil {
		s.metrics.SpawnsActive.Set(float64(n))
	}
	if err != nil {
		slog.Warn("runner: handler exited with error", "pid", pid, "error", err)
		return
	}
	slog.Debug("runner: handler reaped", "pid", pid)
}

// ActiveCount returns the number of live unreaped children.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown blocks until every active child has been reaped or the context
// expires. Children are not signalled; handlers are expected to be short.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "runner: shutdown timed out waiting for handlers")
	}
}

// waitIdle is a test hook: it polls until the active set is empty.
func (s *Supervisor) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ActiveCount() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
