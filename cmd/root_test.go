package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BhekumusaEric/apply4me-sub001/internal/config"
	"github.com/BhekumusaEric/apply4me-sub001/internal/scheduler"
	"github.com/BhekumusaEric/apply4me-sub001/internal/store"
	"github.com/BhekumusaEric/apply4me-sub001/internal/synchronizer"
)

// MockApp mocks the App interface.
type MockApp struct {
	mock.Mock
}

func (m *MockApp) Close() { m.Called() }

func (m *MockApp) Run(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockApp) Tasks() []scheduler.Task {
	return m.Called().Get(0).([]scheduler.Task)
}

func (m *MockApp) RunTask(ctx context.Context, taskID string) (scheduler.Result, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(scheduler.Result), args.Error(1)
}

func (m *MockApp) Sweep(ctx context.Context) (synchronizer.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(synchronizer.SweepResult), args.Error(1)
}

func factoryFor(a App) appFactory {
	return func(context.Context, config.Config, *zap.Logger) (App, error) { return a, nil }
}

func execute(t *testing.T, factory appFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := root.Execute()
	return out.String(), err
}

func TestRunCommandPrintsSummary(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	m.On("RunTask", mock.Anything, "bursary-discovery").Return(scheduler.Result{
		RunID:   "run-1",
		TaskID:  "bursary-discovery",
		Status:  store.RunSucceeded,
		Summary: map[string]int{"new": 2},
	}, nil)
	m.On("Close").Return()

	out, err := execute(t, factoryFor(m), "run", "bursary-discovery")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-1"`)
	assert.Contains(t, out, `"new": 2`)
	m.AssertExpectations(t)
}

func TestRunCommandFailsWithRun(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	m.On("RunTask", mock.Anything, "weekly-digest").Return(scheduler.Result{
		TaskID: "weekly-digest",
		Status: store.RunFailed,
		Err:    errors.New("store unavailable"),
	}, nil)
	m.On("Close").Return()

	_, err := execute(t, factoryFor(m), "run", "weekly-digest")
	require.ErrorContains(t, err, "task weekly-digest failed: store unavailable")
	m.AssertExpectations(t)
}

func TestRunCommandUnknownTask(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	m.On("RunTask", mock.Anything, "nope").Return(scheduler.Result{}, scheduler.ErrUnknownTask)
	m.On("Close").Return()

	_, err := execute(t, factoryFor(m), "run", "nope")
	require.ErrorIs(t, err, scheduler.ErrUnknownTask)
}

func TestRunCommandRequiresTaskID(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	_, err := execute(t, factoryFor(m), "run")
	require.Error(t, err)
	m.AssertNotCalled(t, "RunTask", mock.Anything, mock.Anything)
}

func TestSweepCommand(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	m.On("Sweep", mock.Anything).Return(synchronizer.SweepResult{Scanned: 10, Groups: 1, Removed: 2}, nil)
	m.On("Close").Return()

	out, err := execute(t, factoryFor(m), "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"removed": 2`)
	m.AssertExpectations(t)
}

func TestTasksCommand(t *testing.T) {
	t.Parallel()

	next := time.Date(2025, 6, 16, 6, 0, 0, 0, time.UTC)
	tasks := []scheduler.Task{{
		TaskSpec:  scheduler.TaskSpec{ID: "institution-discovery", Cron: "0 6 * * *", Type: scheduler.TypeScraping, Active: true},
		State:     scheduler.StateIdle,
		NextRunAt: &next,
	}}

	m := &MockApp{}
	m.On("Tasks").Return(tasks)
	m.On("Close").Return()

	out, err := execute(t, factoryFor(m), "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "institution-discovery")
	assert.Contains(t, out, "2025-06-16T06:00:00Z")

	out, err = execute(t, factoryFor(m), "tasks", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "institution-discovery"`)
}

func TestServeCommand(t *testing.T) {
	t.Parallel()

	m := &MockApp{}
	m.On("Run", mock.Anything).Return(context.Canceled)
	m.On("Close").Return()

	_, err := execute(t, factoryFor(m), "serve")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestFactoryErrorIsReported(t *testing.T) {
	t.Parallel()

	factory := func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("postgres init failed")
	}
	_, err := execute(t, factory, "tasks")
	require.ErrorContains(t, err, "failed to initialize application services: postgres init failed")
}

func TestConfigFileIsLoaded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))

	var got config.Config
	factory := func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		got = cfg
		m := &MockApp{}
		m.On("Tasks").Return([]scheduler.Task{})
		m.On("Close").Return()
		return m, nil
	}
	_, err := execute(t, factory, "tasks", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 9191, got.Server.Port)
}

func TestBadConfigFails(t *testing.T) {
	t.Parallel()

	_, err := execute(t, factoryFor(&MockApp{}), "tasks", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "load config")
}

func TestLoadEnvFile(t *testing.T) {
	t.Parallel()

	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "nope.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APPLY4ME_CLI_ENV_MARKER=loaded\n"), 0o600))
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("APPLY4ME_CLI_ENV_MARKER"))

	require.Error(t, loadEnvFile(t.TempDir()))
}
