package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/matching"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/ratelimit"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// Resolver finds the target catalog entry for a track that is missing on the target playlist.
type Resolver struct {
	matcher *matching.Matcher
	limiter *ratelimit.Limiter
	retry   shared.RetryPolicy
	queries int
	limit   int
	logger  *log.Logger
}

// ResolverOpts configures a [Resolver].
type ResolverOpts struct {
	Matcher *matching.Matcher
	Limiter *ratelimit.Limiter
	Retry   shared.RetryPolicy
	// Queries is how many query variants may be tried per track.
	Queries int
	// Limit is the number of results requested per query.
	Limit  int
	Logger *log.Logger
}

// NewResolver creates a Resolver. Zero values take defaults: 1 query, 5 results.
func NewResolver(opts ResolverOpts) *Resolver {
	r := &Resolver{
		matcher: opts.Matcher,
		limiter: opts.Limiter,
		retry:   opts.Retry,
		queries: opts.Queries,
		limit:   opts.Limit,
		logger:  opts.Logger,
	}
	if r.matcher == nil {
		r.matcher = matching.New(matching.DefaultConfig())
	}
	if r.limiter == nil {
		r.limiter = ratelimit.New(nil)
	}
	if r.queries <= 0 {
		r.queries = 1
	}
	if r.limit <= 0 {
		r.limit = 5
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r
}

// Resolve searches target for missing and returns the best candidate at or above the match threshold.
//
// Query variants are tried in order until one yields an accepted candidate.
// Ties keep the earliest search result.
// Returns [shared.ErrNotFound] when no candidate qualifies.
func (r *Resolver) Resolve(ctx context.Context, missing models.TrackRef, target services.Reader) (models.MatchPair, error) {
	platform := target.Platform()

	for _, query := range searchQueries(missing, r.queries) {
		var raw []services.RawTrack
		_, err := shared.Retry(ctx, r.retry, func(int) error {
			return withPermit(ctx, r.limiter, platform, func(ctx context.Context) error {
				var err error
				raw, err = target.SearchCatalog(ctx, query, r.limit)
				return err
			})
		})
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			metrics.RecordResolve(platform.String(), "error")
			return models.MatchPair{}, fmt.Errorf("search %s for %q: %w", platform, query, err)
		}

		if best, ok := r.best(missing, services.NormalizeAll(raw)); ok {
			r.logger.Debug("resolved track", "track", missing.String(), "query", query, "target", best.Target.PlatformID, "confidence", best.Confidence)
			metrics.RecordResolve(platform.String(), "found")
			return best, nil
		}
	}

	metrics.RecordResolve(platform.String(), "not_found")
	return models.MatchPair{}, fmt.Errorf("%w: no %s match for %s", shared.ErrNotFound, platform, missing)
}

func (r *Resolver) best(missing models.TrackRef, candidates []models.TrackRef) (models.MatchPair, bool) {
	var best models.MatchPair
	found := false
	for _, c := range candidates {
		conf := r.matcher.Score(missing, c)
		if !r.matcher.Accepts(conf) {
			continue
		}
		if !found || conf > best.Confidence {
			best = models.MatchPair{Source: missing, Target: c, Confidence: conf}
			found = true
		}
	}
	return best, found
}

// searchQueries builds up to n distinct query variants, most specific first.
func searchQueries(t models.TrackRef, n int) []string {
	join := func(parts ...string) string { return strings.Join(strings.Fields(strings.Join(parts, " ")), " ") }
	variants := []string{
		join(t.Title, t.PrimaryArtist()),
		join(t.Title),
		join(t.Title, t.PrimaryArtist(), "official audio"),
	}

	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, n)
	for _, q := range variants {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}

// withPermit runs fn under a rate limiter permit for platform and records the queueing time.
func withPermit(ctx context.Context, l *ratelimit.Limiter, platform models.Platform, fn func(context.Context) error) error {
	permit, err := l.Acquire(ctx, platform)
	if err != nil {
		return err
	}
	defer l.Release(permit)
	metrics.RecordPermitWait(platform.String(), permit.Waited)
	return fn(ctx)
}
