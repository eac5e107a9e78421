package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edfinlab/spendtrends/internal/config"
)

func startRunner(t *testing.T, cfg config.WatchConfig, input string, trigger TriggerFunc) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewRunner(nil, cfg, input, trigger).Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func notify(runs chan<- struct{}) {
	select {
	case runs <- struct{}{}:
	default:
	}
}

func waitRun(t *testing.T, runs <-chan struct{}) {
	t.Helper()
	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run")
	}
}

func TestRunnerRunsOnStartupAndChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "panel.csv")
	require.NoError(t, os.WriteFile(input, []byte("a\n"), 0o644))

	runs := make(chan struct{}, 8)
	cancel, errc := startRunner(t, config.WatchConfig{Debounce: 20 * time.Millisecond}, input, func(context.Context) error {
		notify(runs)
		return nil
	})

	waitRun(t, runs)

	require.NoError(t, os.WriteFile(input, []byte("a\nb\n"), 0o644))
	waitRun(t, runs)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "panel.csv")
	require.NoError(t, os.WriteFile(input, []byte("a\n"), 0o644))

	runs := make(chan struct{}, 8)
	startRunner(t, config.WatchConfig{Debounce: 10 * time.Millisecond}, input, func(context.Context) error {
		notify(runs)
		return nil
	})
	waitRun(t, runs)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	select {
	case <-runs:
		t.Fatal("unexpected run for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunnerSurvivesFailedRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "panel.csv")
	require.NoError(t, os.WriteFile(input, []byte("a\n"), 0o644))

	runs := make(chan struct{}, 8)
	startRunner(t, config.WatchConfig{}, input, func(context.Context) error {
		notify(runs)
		return errors.New("schema error")
	})
	waitRun(t, runs)

	require.NoError(t, os.WriteFile(input, []byte("b\n"), 0o644))
	waitRun(t, runs)
}

func TestRunnerRejectsBadSchedule(t *testing.T) {
	input := filepath.Join(t.TempDir(), "panel.csv")
	err := NewRunner(nil, config.WatchConfig{Schedule: "every now and then"}, input, func(context.Context) error { return nil }).
		Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid watch schedule")
}

func TestRunnerMissingDirectory(t *testing.T) {
	input := filepath.Join(t.TempDir(), "missing", "panel.csv")
	err := NewRunner(nil, config.WatchConfig{}, input, func(context.Context) error { return nil }).Run(context.Background())
	assert.Error(t, err)
}
