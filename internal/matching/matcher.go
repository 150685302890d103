package matching

import (
	"sort"

	"github.com/desertthunder/plsync/internal/models"
)

// Defaults for [Config].
const (
	DefaultThreshold     = 0.75
	DefaultAmbiguityBand = 0.05

	// bandEpsilon absorbs float noise so that a gap of exactly the band is not ambiguous.
	bandEpsilon = 1e-9
)

// Config holds the matching thresholds.
type Config struct {
	// Threshold is the minimum confidence of an accepted pair, inclusive.
	Threshold float64
	// AmbiguityBand is the gap below which the two best candidates of a source are too close to call.
	AmbiguityBand float64
	// TopK bounds the fuzzy candidates per source track.
	TopK int
}

// DefaultConfig returns threshold 0.75, band 0.05 and top-5 fuzzy candidates.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, AmbiguityBand: DefaultAmbiguityBand, TopK: DefaultTopK}
}

// Matcher pairs source tracks with target tracks.
// A Matcher holds no per-call state and is safe for concurrent use.
type Matcher struct {
	cfg    Config
	scorer Scorer
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithScorer replaces the default [Score] function.
func WithScorer(s Scorer) Option {
	return func(m *Matcher) { m.scorer = s }
}

// New creates a Matcher. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Matcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.AmbiguityBand < 0 {
		cfg.AmbiguityBand = DefaultAmbiguityBand
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	m := &Matcher{cfg: cfg, scorer: Score}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Matcher) Config() Config { return m.cfg }

// Score applies the matcher's scorer to a single pair.
func (m *Matcher) Score(source, target models.TrackRef) float64 {
	return m.scorer(source, target)
}

// Accepts reports whether confidence clears the threshold.
func (m *Matcher) Accepts(confidence float64) bool {
	return confidence >= m.cfg.Threshold
}

// Result is the outcome of [Matcher.Match] with positions into the inputs.
type Result struct {
	Source    []models.TrackRef
	Target    []models.TrackRef
	Matched   []Pair
	Ambiguous []Group
}

// Pair is a scored (source, target) position pair.
type Pair struct {
	Source     int
	Target     int
	Confidence float64
}

// Group is an ambiguous source and the targets reserved to it, best first.
type Group struct {
	Source     int
	Candidates []Pair
}

// Match runs greedy stable matching between source and target.
//
// The result is deterministic for a given input order.
func (m *Matcher) Match(source, target []models.TrackRef) Result {
	res := Result{Source: source, Target: target}
	if len(source) == 0 || len(target) == 0 {
		return res
	}

	pairs, bySource := m.candidatePairs(source, target)

	sourceDone := make([]bool, len(source))
	targetTaken := make([]bool, len(target))

	for _, p := range pairs {
		if p.Confidence < m.cfg.Threshold {
			break
		}
		if sourceDone[p.Source] || targetTaken[p.Target] {
			continue
		}

		// p is the best remaining candidate of its source; look for a runner-up.
		var rivals []Pair
		for _, q := range bySource[p.Source] {
			if q.Target == p.Target || targetTaken[q.Target] {
				continue
			}
			if p.Confidence-q.Confidence < m.cfg.AmbiguityBand-bandEpsilon {
				rivals = append(rivals, q)
			}
		}

		sourceDone[p.Source] = true
		if len(rivals) == 0 {
			targetTaken[p.Target] = true
			res.Matched = append(res.Matched, p)
			continue
		}

		group := Group{Source: p.Source, Candidates: append([]Pair{p}, rivals...)}
		for _, c := range group.Candidates {
			targetTaken[c.Target] = true
		}
		res.Ambiguous = append(res.Ambiguous, group)
	}

	sort.Slice(res.Matched, func(a, b int) bool { return res.Matched[a].Source < res.Matched[b].Source })
	sort.Slice(res.Ambiguous, func(a, b int) bool { return res.Ambiguous[a].Source < res.Ambiguous[b].Source })
	return res
}

// candidatePairs scores every pre-filtered pair and returns them in greedy order,
// together with each source's candidates in the same order.
func (m *Matcher) candidatePairs(source, target []models.TrackRef) ([]Pair, [][]Pair) {
	targetKeys := make([]Key, len(target))
	isrcs := make([]string, len(target))
	for j, t := range target {
		targetKeys[j] = KeyOf(t)
		isrcs[j] = t.ISRC
	}
	idx := newTrigramIndex(targetKeys, isrcs)

	var pairs []Pair
	bySource := make([][]Pair, len(source))
	for i, s := range source {
		for _, j := range idx.candidates(KeyOf(s), s.ISRC, m.cfg.TopK) {
			p := Pair{Source: i, Target: j, Confidence: m.scorer(s, target[j])}
			pairs = append(pairs, p)
			bySource[i] = append(bySource[i], p)
		}
	}

	sortPairs(pairs)
	for i := range bySource {
		sortPairs(bySource[i])
	}
	return pairs, bySource
}

// sortPairs orders by confidence descending, then source position, then target position.
func sortPairs(pairs []Pair) {
	sort.Slice(pairs, func(a, b int) bool {
		pa, pb := pairs[a], pairs[b]
		if pa.Confidence != pb.Confidence {
			return pa.Confidence > pb.Confidence
		}
		if pa.Source != pb.Source {
			return pa.Source < pb.Source
		}
		return pa.Target < pb.Target
	})
}
