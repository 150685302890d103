package matching

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/desertthunder/plsync/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BucketSize is the duration bucket width in milliseconds.
const BucketSize = 2000

var (
	// Parenthesized or bracketed qualifiers that do not change the recording.
	qualifier = regexp.MustCompile(`(?i)[\(\[][^\)\]]*\b(?:feat|ft|featuring|with|remaster(?:ed)?|mono|stereo|explicit|clean|bonus track)\b[^\)\]]*[\)\]]`)
	// Trailing " - Remastered 2011", " - 2009 Remaster", " feat. X".
	dashRemaster = regexp.MustCompile(`(?i)\s+-\s+(?:\d{4}\s+)?remaster(?:ed)?(?:\s+\d{4})?(?:\s+version)?\s*$`)
	featTail     = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
)

// Key is the normalized pre-filter key of a track.
type Key struct {
	Title  string
	Artist string
	// Bucket is the duration in [BucketSize] units, rounded to nearest. Meaningless when HasDuration is false.
	Bucket      int
	HasDuration bool
}

// Text returns "title artist", the string compared by similarity functions.
func (k Key) Text() string {
	return strings.TrimSpace(k.Title + " " + k.Artist)
}

// KeyOf builds the [Key] of t.
func KeyOf(t models.TrackRef) Key {
	k := Key{
		Title:       NormalizeTitle(t.Title),
		Artist:      NormalizeText(t.PrimaryArtist()),
		HasDuration: t.HasDuration(),
	}
	if k.HasDuration {
		k.Bucket = int(math.Round(float64(t.DurationMs) / BucketSize))
	}
	return k
}

// NormalizeTitle strips featuring credits and remaster qualifiers before applying [NormalizeText].
func NormalizeTitle(s string) string {
	s = qualifier.ReplaceAllString(s, " ")
	s = dashRemaster.ReplaceAllString(s, "")
	s = featTail.ReplaceAllString(s, "")
	return NormalizeText(s)
}

// NormalizeText lower-cases s, folds accents, replaces punctuation with spaces and collapses whitespace.
func NormalizeText(s string) string {
	s = foldAccents(strings.ToLower(s))
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case r == '\'' || r == '’':
			// "don't" and "dont" compare equal
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
