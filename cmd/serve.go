package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API until interrupted.
// When [log] file is set, request logs go to the rotating file instead of stderr.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	logger := r.logger
	if r.config.Log.File != "" {
		fileLogger, closer := shared.NewFileLogger(r.config.Log)
		defer closer.Close()
		logger = fileLogger
		r.logger.Info("logging to file", "path", r.config.Log.File)
	}

	var runs server.RunStore
	if r.runs != nil {
		runs = r.runs
	} else {
		logger.Warn("no database configured, run history endpoints will return 503")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(logger, server.NewSyncHandler(r.engine, runs, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Serve(ctx, srv, logger, shutdownTimeout)
}
