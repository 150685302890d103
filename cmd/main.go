package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	ctx := context.Background()

	configPath := os.Getenv("PLSYNC_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}
	shared.SetLogLevel(logger, shared.ParseLevel(config.Log.Level))

	svcs := map[models.Platform]services.Service{
		models.YouTube: services.NewYouTubeService(config.Credentials.YouTube),
	}
	spotify := services.NewSpotifyService(config.Credentials.Spotify)
	if err := spotify.Authenticate(ctx); err == nil {
		svcs[models.Spotify] = spotify
	} else {
		logger.Debug("spotify disabled", "error", err)
	}

	opts := RunnerOpts{Config: config, ConfigPath: configPath, Services: svcs, Logger: logger}
	runs, closer, err := openRunStore(ctx, config.Database)
	if err != nil {
		logger.Debug("run history disabled", "error", err)
	} else {
		defer closer.Close()
		opts.Runs = runs
	}

	runner := NewRunner(opts)

	app := &cli.Command{
		Name:     "plsync",
		Usage:    "Reconcile and sync playlists between Spotify & YouTube Music",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Warn("interrupted")
			os.Exit(130)
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

// openRunStore opens the configured database, applying pending migrations.
func openRunStore(ctx context.Context, cfg shared.DatabaseConfig) (*repositories.SyncRunRepository, io.Closer, error) {
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	shared.ConfigureDatabase(db, cfg)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repositories.NewSyncRunRepository(db), db, nil
}
