// Package matching pairs tracks across platforms and classifies two playlists into a [models.DiffReport].
//
// # Keys
//
// [KeyOf] reduces a [models.TrackRef] to a [Key]: lower-cased, accent-folded, punctuation-stripped
// title and primary artist plus the duration rounded to the nearest 2 seconds. Keys are only a
// pre-filter; they never decide a match on their own.
//
// # Scoring
//
//	confidence = 0.6·titleArtistSimilarity + 0.3·durationScore + 0.1·albumBonus
//
// titleArtistSimilarity is the normalized Levenshtein similarity of "title primaryArtist".
// durationScore falls linearly from 1 to 0 over a 10 second difference. When either duration is
// unknown the remaining weights are renormalized. Confidences are rounded to 6 decimals.
//
// # Matching
//
// [Matcher.Match] runs greedy stable matching over every candidate pair, highest confidence first,
// ties broken by source then target position. Pairs below the threshold are never accepted. A source
// whose best remaining candidate is within the ambiguity band of its runner-up is withheld as
// ambiguous, and the tied targets are reserved to it.
//
// # Diff
//
// [Diff] turns a [Result] into a [models.DiffReport]; [CheckPartition] verifies that every source
// and target track lands in exactly one bucket.
package matching
