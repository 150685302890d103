package main

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/urfave/cli/v3"
)

type healthChecker interface {
	Health(ctx context.Context) (services.ProxyHealth, error)
}

// AuthStatus reports which platforms are configured and, for the YouTube proxy, whether it is reachable.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("checking auth status")

	for _, p := range []models.Platform{models.Spotify, models.YouTube} {
		svc, ok := r.services[p]
		if !ok {
			r.writePlain("%s %s: not configured\n", r.palette.Err("✗"), p)
			continue
		}

		hc, ok := svc.(healthChecker)
		if !ok {
			r.writePlain("%s %s: credentials loaded\n", r.palette.OK("✓"), svc.Name())
			continue
		}

		health, err := hc.Health(ctx)
		switch {
		case err != nil:
			r.logger.Warn("health check failed", "platform", p, "error", err)
			r.writePlain("%s %s: unreachable (%v)\n", r.palette.Err("✗"), svc.Name(), err)
		case health.Authenticated:
			r.writePlain("%s %s: %s, authenticated\n", r.palette.OK("✓"), svc.Name(), health.Status)
		default:
			r.writePlain("%s %s: %s, not authenticated\n", r.palette.Warn("!"), svc.Name(), health.Status)
		}
	}
	return nil
}
