package matching

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// Diff classifies a [Result] into a [models.DiffReport].
//
// Matched and Ambiguous follow source order, MissingOnTarget follows source order and
// MissingOnSource follows target order.
func Diff(res Result) models.DiffReport {
	report := models.DiffReport{
		Matched:         []models.MatchPair{},
		MissingOnTarget: []models.TrackRef{},
		MissingOnSource: []models.TrackRef{},
		Ambiguous:       []models.AmbiguousGroup{},
	}

	sourceUsed := make([]bool, len(res.Source))
	targetUsed := make([]bool, len(res.Target))

	for _, p := range res.Matched {
		sourceUsed[p.Source] = true
		targetUsed[p.Target] = true
		report.Matched = append(report.Matched, toMatchPair(res, p))
	}

	for _, g := range res.Ambiguous {
		sourceUsed[g.Source] = true
		group := models.AmbiguousGroup{Track: res.Source[g.Source]}
		for _, c := range g.Candidates {
			targetUsed[c.Target] = true
			group.Candidates = append(group.Candidates, toMatchPair(res, c))
		}
		report.Ambiguous = append(report.Ambiguous, group)
	}

	for i, used := range sourceUsed {
		if !used {
			report.MissingOnTarget = append(report.MissingOnTarget, res.Source[i])
		}
	}
	for j, used := range targetUsed {
		if !used {
			report.MissingOnSource = append(report.MissingOnSource, res.Target[j])
		}
	}
	return report
}

// Compare matches source against target and returns the diff.
func (m *Matcher) Compare(source, target models.PlaylistSnapshot) models.DiffReport {
	return Diff(m.Match(source.Tracks, target.Tracks))
}

func toMatchPair(res Result, p Pair) models.MatchPair {
	return models.MatchPair{Source: res.Source[p.Source], Target: res.Target[p.Target], Confidence: p.Confidence}
}

// CheckPartition verifies that every source track appears exactly once across matched, missingOnTarget
// and ambiguous, and every target track exactly once across matched, missingOnSource and the
// ambiguous candidates. Tracks are identified by platform id, so duplicate entries are counted.
func CheckPartition(report models.DiffReport, source, target []models.TrackRef) error {
	srcSeen := make(map[string]int)
	for _, p := range report.Matched {
		srcSeen[p.Source.PlatformID]++
	}
	for _, t := range report.MissingOnTarget {
		srcSeen[t.PlatformID]++
	}
	for _, g := range report.Ambiguous {
		srcSeen[g.Track.PlatformID]++
	}
	if err := sameMultiset("source", srcSeen, source); err != nil {
		return err
	}

	tgtSeen := make(map[string]int)
	for _, p := range report.Matched {
		tgtSeen[p.Target.PlatformID]++
	}
	for _, t := range report.MissingOnSource {
		tgtSeen[t.PlatformID]++
	}
	for _, g := range report.Ambiguous {
		for _, c := range g.Candidates {
			tgtSeen[c.Target.PlatformID]++
		}
	}
	return sameMultiset("target", tgtSeen, target)
}

func sameMultiset(side string, seen map[string]int, tracks []models.TrackRef) error {
	want := make(map[string]int, len(tracks))
	for _, t := range tracks {
		want[t.PlatformID]++
	}
	for id, n := range want {
		if seen[id] != n {
			return fmt.Errorf("partition violated: %s track %q appears %d times, want %d", side, id, seen[id], n)
		}
	}
	for id, n := range seen {
		if _, ok := want[id]; !ok {
			return fmt.Errorf("partition violated: unknown %s track %q appears %d times", side, id, n)
		}
	}
	return nil
}
