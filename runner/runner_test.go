package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHandler(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
}

func TestSpawnAndReap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell handlers are unix-only")
	}
	dir := t.TempDir()
	writeHandler(t, dir, "ok.sh", "exit 0")

	s := NewSupervisor(dir, []string{"PATH=/usr/bin:/bin"}, 4, nil)
	pid, err := s.Spawn("ok.sh", []string{"cmd", "1", "2"})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	assert.True(t, s.waitIdle(2*time.Second))
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSpawnRejectsAtCapacity(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell handlers are unix-only")
	}
	dir := t.TempDir()
	writeHandler(t, dir, "slow.sh", "sleep 2")

	s := NewSupervisor(dir, []string{"PATH=/usr/bin:/bin"}, 2, nil)
	_, err := s.Spawn("slow.sh", nil)
	require.NoError(t, err)
	_, err = s.Spawn("slow.sh", nil)
	require.NoError(t, err)

	_, err = s.Spawn("slow.sh", nil)
	assert.ErrorIs(t, err, ErrAtCapacity)
	assert.Equal(t, 2, s.ActiveCount())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.ActiveCount())
}

func TestSlotReturnedAfterReap(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell handlers are unix-only")
	}
	dir := t.TempDir()
	writeHandler(t, dir, "ok.sh", "exit 0")

	s := NewSupervisor(dir, []string{"PATH=/usr/bin:/bin"}, 1, nil)
	_, err := s.Spawn("ok.sh", nil)
	require.NoError(t, err)
	require.True(t, s.waitIdle(2*time.Second))

	// Slot must be reusable once the first child is reaped.
	_, err = s.Spawn("ok.sh", nil)
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestSpawnRejectsPathTraversal(t *testing.T) {
	s := NewSupervisor(t.TempDir(), nil, 1, nil)
	_, err := s.Spawn("../evil", nil)
	require.Error(t, err)
	_, err = s.Spawn("sub/evil", nil)
	require.Error(t, err)
	_, err = s.Spawn("", nil)
	require.Error(t, err)
}

func TestSpawnMissingFile(t *testing.T) {
	s := NewSupervisor(t.TempDir(), nil, 2, nil)
	_, err := s.Spawn("nope.sh", nil)
	require.Error(t, err)
	// Failed spawn must not leak its slot.
	assert.Equal(t, 0, s.ActiveCount())
	_, err = s.Spawn("nope.sh", nil)
	assert.NotErrorIs(t, err, ErrAtCapacity)
}
