package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
	"github.com/urfave/cli/v3"
)

type healthyPlatform struct {
	*tu.FakePlatform
	health services.ProxyHealth
	err    error
}

func (h *healthyPlatform) Health(ctx context.Context) (services.ProxyHealth, error) {
	return h.health, h.err
}

func testRunnerConfig() *shared.Config {
	config := shared.DefaultConfig()
	config.RateLimits = nil
	config.Sync.Retry.BaseDelayMs = 1
	return config
}

func newTestStore(t *testing.T) *repositories.SyncRunRepository {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repositories.NewSyncRunRepository(db)
}

// newTestRunner wires a Spotify playlist "src" holding tracks and an empty YouTube playlist "dst"
// whose catalog holds catalog.
func newTestRunner(t *testing.T, runs RunStore, tracks, catalog []models.TrackRef) (*Runner, *bytes.Buffer, *tu.FakePlatform) {
	t.Helper()
	src := tu.NewFakePlatform(models.Spotify, false)
	dst := tu.NewFakePlatform(models.YouTube, true)
	src.SetPlaylist("src", tracks...)
	dst.SetPlaylist("dst")
	dst.AddToCatalog(catalog...)

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:   testRunnerConfig(),
		Services: map[models.Platform]services.Service{models.Spotify: src, models.YouTube: dst},
		Runs:     runs,
		Logger:   shared.NewLogger(io.Discard),
		Output:   output,
	})
	return runner, output, dst
}

func runApp(r *Runner, args ...string) error {
	app := &cli.Command{
		Name:      "plsync",
		Commands:  r.register(),
		Writer:    io.Discard,
		ErrWriter: io.Discard,
	}
	return app.Run(context.Background(), append([]string{"plsync"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			store := newTestStore(t)

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Runs:       store,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.runs != store {
				t.Error("expected run store to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.engine == nil {
				t.Error("expected default engine to be built")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.runs != nil {
				t.Error("expected no run store")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			err := runner.writeJSON(map[string]any{"fn": func() {}}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("Hello %s, count: %d\n", "World", 42); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "Hello World, count: 42\n" {
				t.Errorf("unexpected output %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writePlain("test"); err == nil {
				t.Error("expected error on write failure")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "sync", "serve"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command at index %d: expected %s, got %+v", i, want[i], cmd)
			}
		}
	})
}

func TestSyncCommands(t *testing.T) {
	tracks := []models.TrackRef{
		tu.Track("s1", "Windowlicker", "Aphex Twin", 367000),
		tu.Track("s2", "Avril 14th", "Aphex Twin", 125000),
	}
	catalog := []models.TrackRef{
		tu.Track("yt1", "Windowlicker", "Aphex Twin", 367000),
		tu.Track("yt2", "Avril 14th", "Aphex Twin", 125000),
	}

	t.Run("compare prints report", func(t *testing.T) {
		runner, output, _ := newTestRunner(t, nil, tracks, catalog)

		if err := runApp(runner, "sync", "compare", "--source-id", "src", "--target-id", "dst"); err != nil {
			t.Fatalf("compare failed: %v", err)
		}
		out := output.String()
		if !strings.Contains(out, "Missing on target") || !strings.Contains(out, "Aphex Twin - Avril 14th") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("compare writes CSV file", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, nil, tracks, catalog)
		path := filepath.Join(t.TempDir(), "diff.csv")

		err := runApp(runner, "sync", "compare", "--source-id", "src", "--target-id", "dst", "--format", "csv", "--output", path)
		if err != nil {
			t.Fatalf("compare failed: %v", err)
		}
		content := tu.MustReadFile(t, path)
		if strings.Count(content, "missing_on_target") != 2 {
			t.Errorf("expected two missing rows:\n%s", content)
		}
	})

	t.Run("invalid direction", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, nil, tracks, catalog)
		err := runApp(runner, "sync", "compare", "--direction", "spotify-to-spotify", "--source-id", "src", "--target-id", "dst")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, nil, tracks, catalog)
		err := runApp(runner, "sync", "compare", "--source-id", "src", "--target-id", "dst", "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("run adds tracks and records history", func(t *testing.T) {
		store := newTestStore(t)
		runner, output, dst := newTestRunner(t, store, tracks, catalog)

		if err := runApp(runner, "sync", "run", "--source-id", "src", "--target-id", "dst"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if got := len(dst.Playlist("dst")); got != 2 {
			t.Errorf("expected 2 tracks on target, got %d", got)
		}
		if !strings.Contains(output.String(), "completed") {
			t.Errorf("expected completed run in output:\n%s", output.String())
		}

		listings, err := store.List(context.Background(), 10)
		if err != nil || len(listings) != 1 {
			t.Fatalf("expected one recorded run, got %d (%v)", len(listings), err)
		}
		id := listings[0].Run.ID

		output.Reset()
		if err := runApp(runner, "sync", "runs", "list"); err != nil {
			t.Fatalf("runs list failed: %v", err)
		}
		if !strings.Contains(output.String(), id) || !strings.Contains(output.String(), "2 ok / 0 failed / 0 skipped") {
			t.Errorf("unexpected listing:\n%s", output.String())
		}

		output.Reset()
		if err := runApp(runner, "sync", "runs", "show", "--format", "markdown", id); err != nil {
			t.Fatalf("runs show failed: %v", err)
		}
		if !strings.Contains(output.String(), "# Sync run "+id) {
			t.Errorf("unexpected run detail:\n%s", output.String())
		}
	})

	t.Run("max-sync limits writes", func(t *testing.T) {
		runner, _, dst := newTestRunner(t, nil, tracks, catalog)

		if err := runApp(runner, "sync", "run", "--source-id", "src", "--target-id", "dst", "--max-sync", "1"); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if got := len(dst.Playlist("dst")); got != 1 {
			t.Errorf("expected 1 track on target, got %d", got)
		}
	})

	t.Run("mirror requires confirmation", func(t *testing.T) {
		runner, _, dst := newTestRunner(t, nil, tracks, catalog)

		err := runApp(runner, "sync", "run", "--source-id", "src", "--target-id", "dst", "--mirror")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if dst.CountCalls("add") != 0 {
			t.Error("expected no writes without confirmation")
		}
	})

	t.Run("failed run returns error", func(t *testing.T) {
		runner, output, _ := newTestRunner(t, nil, tracks, catalog)

		err := runApp(runner, "sync", "run", "--source-id", "missing", "--target-id", "dst")
		if !errors.Is(err, shared.ErrFetch) {
			t.Errorf("expected ErrFetch, got %v", err)
		}
		if !strings.Contains(output.String(), "failed") {
			t.Errorf("expected failed run to be rendered:\n%s", output.String())
		}
	})

	t.Run("runs without database", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, nil, tracks, catalog)
		if err := runApp(runner, "sync", "runs", "list"); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		runner, _, _ := newTestRunner(t, newTestStore(t), tracks, catalog)
		if err := runApp(runner, "sync", "runs", "show", "nope"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}

func TestAuthStatus(t *testing.T) {
	output := &bytes.Buffer{}
	yt := &healthyPlatform{
		FakePlatform: tu.NewFakePlatform(models.YouTube, true),
		health:       services.ProxyHealth{Status: "ok", Authenticated: true},
	}
	runner := NewRunner(RunnerOpts{
		Services: map[models.Platform]services.Service{models.YouTube: yt},
		Logger:   shared.NewLogger(io.Discard),
		Output:   output,
	})

	if err := runApp(runner, "auth", "status"); err != nil {
		t.Fatalf("auth status failed: %v", err)
	}
	out := output.String()
	if !strings.Contains(out, "spotify: not configured") {
		t.Errorf("expected spotify to be reported missing:\n%s", out)
	}
	if !strings.Contains(out, "ok, authenticated") {
		t.Errorf("expected healthy proxy:\n%s", out)
	}

	output.Reset()
	yt.err = tu.Transient("health")
	if err := runApp(runner, "auth", "status"); err != nil {
		t.Fatalf("auth status failed: %v", err)
	}
	if !strings.Contains(output.String(), "unreachable") {
		t.Errorf("expected unreachable proxy:\n%s", output.String())
	}
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		if err := runApp(runner, "setup", "config", "--config", path); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "[sync]") {
			t.Error("expected example config to be written")
		}
		if err := runApp(runner, "setup", "config", "--config", path); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("database and rollback", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "runs.db")
		configPath := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(configPath, []byte("[database]\npath = \""+filepath.ToSlash(dbPath)+"\"\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})

		if err := runApp(runner, "setup", "database", "--config", configPath); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("expected database file: %v", err)
		}
		if err := runApp(runner, "setup", "rollback", "--config", configPath); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if !strings.Contains(output.String(), "Rolled back") {
			t.Errorf("unexpected output:\n%s", output.String())
		}
	})
}
