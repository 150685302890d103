package matching

import (
	"math"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/hbollon/go-edlib"
)

// Score weights and the duration window.
const (
	WeightTitleArtist = 0.6
	WeightDuration    = 0.3
	WeightAlbum       = 0.1

	DurationWindowMs = 10000
)

// Scorer returns the confidence in [0, 1] that two tracks are the same recording.
type Scorer func(source, target models.TrackRef) float64

// Score is the default [Scorer].
func Score(source, target models.TrackRef) float64 {
	return scoreKeys(source, target, KeyOf(source), KeyOf(target))
}

func scoreKeys(source, target models.TrackRef, sk, tk Key) float64 {
	sim := Similarity(sk.Text(), tk.Text())

	album := 0.0
	if a, b := NormalizeTitle(source.Album), NormalizeTitle(target.Album); a != "" && a == b {
		album = 1
	}

	if !source.HasDuration() || !target.HasDuration() {
		return round((WeightTitleArtist*sim + WeightAlbum*album) / (WeightTitleArtist + WeightAlbum))
	}

	return round(WeightTitleArtist*sim + WeightDuration*DurationScore(source.DurationMs, target.DurationMs) + WeightAlbum*album)
}

// DurationScore is 1 for equal durations, falling linearly to 0 at a 10 second difference.
func DurationScore(a, b int) float64 {
	delta := math.Abs(float64(a - b))
	return math.Max(0, 1-delta/DurationWindowMs)
}

// Similarity is the normalized Levenshtein similarity of two normalized strings.
// Two empty strings carry no evidence and score 0.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.Levenshtein)
	if err != nil || math.IsNaN(float64(sim)) {
		return 0
	}
	return float64(sim)
}

// round keeps 6 decimals so that equal scores compare equal regardless of float noise.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
