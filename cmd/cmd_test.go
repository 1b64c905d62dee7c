// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/observability"
	"github.com/xkilldash9x/bulwark/internal/store"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// writeConfig writes a quiet config file into a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
logger:
  level: fatal
  log_file: %s
preflight:
  enabled: false
artifacts:
  report_dir: %s
  screenshot_dir: %s
%s`, filepath.Join(dir, "bulwark.log"), filepath.Join(dir, "reports"), filepath.Join(dir, "shots"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// newRunConfig builds a validated configuration the way the root command does.
func newRunConfig(t *testing.T, overrides map[string]interface{}) config.Interface {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	dir := t.TempDir()
	v.Set("logger.log_file", "")
	v.Set("preflight.enabled", false)
	v.Set("artifacts.report_dir", filepath.Join(dir, "reports"))
	v.Set("artifacts.screenshot_dir", filepath.Join(dir, "shots"))
	v.Set("artifacts.report_formats", []string{"junit"})
	v.Set("retry.max", 0)
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestRootCmd_Version(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		out, err := executeCommand(t, "--version")
		require.NoError(t, err)
		assert.Equal(t, "bulwark version "+Version+"\n", out)
	})

	t.Run("subcommand skips configuration", func(t *testing.T) {
		out, err := executeCommand(t, "version", "--config", "/does/not/exist.yaml")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "bulwark "+Version+" (go"), out)
	})
}

func TestRootCmd_ConfigErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := executeCommand(t, "run", "--list", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize configuration")
	})

	t.Run("invalid setting", func(t *testing.T) {
		path := writeConfig(t, "browser:\n  mode: grid\n")
		_, err := executeCommand(t, "run", "--list", "--config", path)
		require.Error(t, err)

		var cfgErr *config.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "browser.mode", cfgErr.Key)
	})
}

func TestInitializeConfig(t *testing.T) {
	t.Run("environment file wins over the generic one", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile("config.yaml", []byte("runner:\n  base_url: https://generic.example\n"), 0o644))
		require.NoError(t, os.WriteFile("config.staging.yaml", []byte("runner:\n  base_url: https://staging.example\n"), 0o644))

		v := viper.New()
		config.SetDefaults(v)
		require.NoError(t, initializeConfig(v, "", "staging"))
		cfg, err := config.NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "staging", cfg.Runner().Env)
		assert.Equal(t, "https://staging.example", cfg.Runner().BaseURL)
	})

	t.Run("falls back to config.yaml", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile("config.yaml", []byte("runner:\n  base_url: https://generic.example\n"), 0o644))

		v := viper.New()
		config.SetDefaults(v)
		require.NoError(t, initializeConfig(v, "", "uat"))
		cfg, err := config.NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "uat", cfg.Runner().Env)
		assert.Equal(t, "https://generic.example", cfg.Runner().BaseURL)
	})

	t.Run("environment variables override files", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("BULWARK_ENV", "prod")
		t.Setenv("BULWARK_RUNNER_CONCURRENCY", "7")

		v := viper.New()
		config.SetDefaults(v)
		require.NoError(t, initializeConfig(v, "", ""))
		cfg, err := config.NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Runner().Env)
		assert.Equal(t, 7, cfg.Runner().Concurrency)
	})
}

func TestRunCmd_List(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(dataFile, []byte(`[{"id":"3","name":"Nexus 6"}]`), 0o644))
	path := writeConfig(t, fmt.Sprintf("runner:\n  data_file: %s\n", dataFile))

	out, err := executeCommand(t, "run", "--list", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"home_title", "login_ui", "category_filter", "product_detail",
		"cart_workflow", "login_api_teleport", "cart_hybrid", "cart_idempotency",
		"catalog_3", "booking_lifecycle", "booking_auth_rejected",
	}, strings.Fields(out))
}

func TestRunCmd_UnknownScenario(t *testing.T) {
	path := writeConfig(t, "")
	_, err := executeCommand(t, "run", "--only", "checkout", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown scenario "checkout"`)
}

// failingLauncher never produces a browser.
type failingLauncher struct {
	calls atomic.Int32
}

func (l *failingLauncher) Launch(context.Context, browser.UnitID) (*browser.Session, error) {
	l.calls.Add(1)
	return nil, errors.New("chrome not found")
}

type mockStoreProvider struct {
	store   *store.Store
	err     error
	cleaned atomic.Bool
}

func (p *mockStoreProvider) Create(context.Context, config.Interface) (*store.Store, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned.Store(true) }, nil
}

func testRunDeps(launcher browser.Launcher, stores storeProvider, exits *[]int) runDeps {
	return runDeps{
		stores:   stores,
		launcher: func(config.Interface, *zap.Logger) browser.Launcher { return launcher },
		exit:     func(code int) { *exits = append(*exits, code) },
	}
}

func TestRunSuite(t *testing.T) {
	ctx := context.Background()

	t.Run("session start failures are reported as failed scenarios", func(t *testing.T) {
		cfg := newRunConfig(t, nil)
		launcher := &failingLauncher{}
		var exits []int

		summary, err := runSuite(ctx, cfg, runOptions{only: []string{"home_title", "login_ui"}}, testRunDeps(launcher, &mockStoreProvider{}, &exits), zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Failed)
		assert.Equal(t, []string{"home_title", "login_ui"}, summary.Failures)
		assert.Equal(t, int32(2), launcher.calls.Load())
		assert.Empty(t, exits)

		junit, err := os.ReadFile(filepath.Join(cfg.Artifacts().ReportDir, "junit.xml"))
		require.NoError(t, err)
		assert.Contains(t, string(junit), `failures="2"`)
		assert.Contains(t, string(junit), "chrome not found")
	})

	t.Run("results are recorded in the history store", func(t *testing.T) {
		cfg := newRunConfig(t, map[string]interface{}{"database.url": "postgres://bulwark@localhost/bulwark"})

		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectPing()
		s, err := store.New(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectExec("INSERT INTO runs").
			WithArgs(pgxmock.AnyArg(), "qa", Version, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"results"},
			[]string{"run_id", "scenario", "unit", "attempt", "outcome", "message", "screenshot", "started_at", "duration_ms"}).
			WillReturnResult(1)
		batch := mockPool.ExpectBatch()
		batch.ExpectExec("INSERT INTO scenario_stats").
			WithArgs("home_title", 0, 1, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)
		mockPool.ExpectExec("UPDATE runs").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0, 0, 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		provider := &mockStoreProvider{store: s}
		var exits []int
		summary, err := runSuite(ctx, cfg, runOptions{only: []string{"home_title"}}, testRunDeps(&failingLauncher{}, provider, &exits), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.True(t, provider.cleaned.Load())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("an unavailable store does not stop the run", func(t *testing.T) {
		cfg := newRunConfig(t, map[string]interface{}{"database.url": "postgres://bulwark@localhost/bulwark"})
		var exits []int
		provider := &mockStoreProvider{err: errors.New("connection refused")}

		summary, err := runSuite(ctx, cfg, runOptions{only: []string{"home_title"}}, testRunDeps(&failingLauncher{}, provider, &exits), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
	})

	t.Run("an unhealthy backend trips the breaker before any session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		cfg := newRunConfig(t, map[string]interface{}{
			"preflight.enabled": true,
			"preflight.timeout": "2s",
			"api.projects": map[string]interface{}{
				"demoblaze": map[string]interface{}{"base_uri": srv.URL, "health_check": "/entries"},
			},
		})
		launcher := &failingLauncher{}
		var exits []int

		_, err := runSuite(ctx, cfg, runOptions{}, testRunDeps(launcher, &mockStoreProvider{}, &exits), zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, []int{1}, exits)
		assert.Zero(t, launcher.calls.Load())
	})

	t.Run("every API client runs its own breaker", func(t *testing.T) {
		var storeHits, bookerHits atomic.Int32
		healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			storeHits.Add(1)
		}))
		defer healthy.Close()
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bookerHits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer down.Close()

		cfg := newRunConfig(t, map[string]interface{}{
			"preflight.enabled": true,
			"preflight.timeout": "2s",
			"api.projects": map[string]interface{}{
				"demoblaze": map[string]interface{}{"base_uri": healthy.URL},
				"booker":    map[string]interface{}{"base_uri": down.URL},
			},
		})
		launcher := &failingLauncher{}
		var exits []int

		_, err := runSuite(ctx, cfg, runOptions{}, testRunDeps(launcher, &mockStoreProvider{}, &exits), zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, int32(1), storeHits.Load())
		assert.Equal(t, int32(1), bookerHits.Load())
		assert.Equal(t, []int{1}, exits)
		assert.Zero(t, launcher.calls.Load())
	})

	t.Run("unsupported report format", func(t *testing.T) {
		cfg := newRunConfig(t, nil)
		var exits []int
		_, err := runSuite(ctx, cfg, runOptions{formats: []string{"pdf"}}, testRunDeps(&failingLauncher{}, &mockStoreProvider{}, &exits), zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format: pdf")
	})
}

func TestCheckProjects(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	pf := config.PreflightConfig{Enabled: true, Timeout: 2 * time.Second}

	t.Run("all healthy", func(t *testing.T) {
		apiCfg := config.APIConfig{Projects: map[string]config.ProjectConfig{
			"demoblaze": {BaseURI: healthy.URL, HealthCheck: "/entries"},
		}}
		var out bytes.Buffer
		require.NoError(t, checkProjects(context.Background(), &out, http.DefaultClient, apiCfg, pf))
		assert.Contains(t, out.String(), "✓ demoblaze "+healthy.URL+"/entries (200")
	})

	t.Run("every project is reported", func(t *testing.T) {
		apiCfg := config.APIConfig{Projects: map[string]config.ProjectConfig{
			"billing":   {BaseURI: broken.URL, HealthCheck: "health"},
			"demoblaze": {BaseURI: healthy.URL, HealthCheck: "/entries"},
		}}
		var out bytes.Buffer
		err := checkProjects(context.Background(), &out, http.DefaultClient, apiCfg, pf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 backends are unhealthy")
		assert.Contains(t, out.String(), "✗ billing")
		assert.Contains(t, out.String(), "✓ demoblaze")
	})

	t.Run("no projects", func(t *testing.T) {
		err := checkProjects(context.Background(), &bytes.Buffer{}, http.DefaultClient, config.APIConfig{}, pf)
		var cfgErr *config.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "api.projects", cfgErr.Key)
	})
}

func TestValidateLocators(t *testing.T) {
	write := func(t *testing.T, content string) string {
		path := filepath.Join(t.TempDir(), "locators.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("valid override", func(t *testing.T) {
		path := write(t, "NAV_CART:\n  - \"css:#cartur\"\n  - \"id:cartur\"\n")
		var out bytes.Buffer
		require.NoError(t, validateLocators(&out, path))
		assert.Contains(t, out.String(), ": 1 chains")
	})

	t.Run("unknown chain", func(t *testing.T) {
		path := write(t, "NAV_CRAT:\n  - \"id:cartur\"\n")
		err := validateLocators(&bytes.Buffer{}, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown chains NAV_CRAT")
	})

	t.Run("malformed descriptor", func(t *testing.T) {
		path := write(t, "NAV_CART:\n  - \"\"\n")
		err := validateLocators(&bytes.Buffer{}, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "descriptor is empty")
	})

	t.Run("list prints chains in priority order", func(t *testing.T) {
		path := writeConfig(t, "")
		out, err := executeCommand(t, "locators", "list", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "NAV_CART\n  1. id        cartur\n  2. xpath     //a[text()='Cart']\n")
	})
}

func TestHistoryCmd(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()
	mockPool.ExpectPing()
	s, err := store.New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)

	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mockPool.ExpectQuery("FROM scenario_stats").
		WithArgs(3).
		WillReturnRows(pgxmock.NewRows([]string{"scenario", "runs", "flakes", "failures", "last_seen"}).
			AddRow("login_ui", 10, 4, 0, seen))

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	cmd := newHistoryCmd(&mockStoreProvider{store: s})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--limit", "3"})
	cmd.SetContext(context.WithValue(context.Background(), configKey, config.Interface(config.NewDefaultConfig())))
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "SCENARIO")
	assert.Regexp(t, `login_ui\s+10\s+4\s+0\s+2024-05-01T12:00:00Z`, out.String())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPrintHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	assert.Equal(t, "No flaky or failing scenarios recorded.\n", out.String())
}
