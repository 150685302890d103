package matching

import "sort"

// DefaultTopK is the number of fuzzy candidates kept per source track.
const DefaultTopK = 5

// trigramIndex is an inverted index from character trigrams to target positions.
type trigramIndex struct {
	keys     []Key
	exact    map[string][]int
	isrc     map[string][]int
	postings map[string][]int
	sizes    []int
}

func newTrigramIndex(keys []Key, isrcs []string) *trigramIndex {
	idx := &trigramIndex{
		keys:     keys,
		exact:    make(map[string][]int),
		isrc:     make(map[string][]int),
		postings: make(map[string][]int),
		sizes:    make([]int, len(keys)),
	}
	for j, k := range keys {
		idx.exact[exactKey(k)] = append(idx.exact[exactKey(k)], j)
		if isrcs[j] != "" {
			idx.isrc[isrcs[j]] = append(idx.isrc[isrcs[j]], j)
		}
		grams := trigrams(k.Text())
		idx.sizes[j] = len(grams)
		for g := range grams {
			idx.postings[g] = append(idx.postings[g], j)
		}
	}
	return idx
}

func exactKey(k Key) string {
	return k.Title + "\x00" + k.Artist
}

// candidates returns target positions worth scoring against a source, in ascending order.
//
// Targets with the same title and artist whose duration bucket is within one bucket, and targets
// sharing the ISRC, are taken directly. When there are none, the topK targets by trigram Jaccard
// similarity are used instead.
func (idx *trigramIndex) candidates(k Key, isrc string, topK int) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(j int) {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}

	if k.Title != "" {
		for _, j := range idx.exact[exactKey(k)] {
			t := idx.keys[j]
			if !k.HasDuration || !t.HasDuration || abs(k.Bucket-t.Bucket) <= 1 {
				add(j)
			}
		}
	}
	if isrc != "" {
		for _, j := range idx.isrc[isrc] {
			add(j)
		}
	}

	if len(out) == 0 {
		out = idx.fuzzy(k, topK)
	}
	sort.Ints(out)
	return out
}

// fuzzy ranks targets by trigram Jaccard similarity, best first, ties by position.
func (idx *trigramIndex) fuzzy(k Key, topK int) []int {
	if topK <= 0 {
		topK = DefaultTopK
	}
	grams := trigrams(k.Text())
	if len(grams) == 0 {
		return nil
	}

	shared := make(map[int]int)
	for g := range grams {
		for _, j := range idx.postings[g] {
			shared[j]++
		}
	}

	type ranked struct {
		pos     int
		jaccard float64
	}
	ranks := make([]ranked, 0, len(shared))
	for j, inter := range shared {
		union := len(grams) + idx.sizes[j] - inter
		ranks = append(ranks, ranked{pos: j, jaccard: float64(inter) / float64(union)})
	}
	sort.Slice(ranks, func(a, b int) bool {
		if ranks[a].jaccard != ranks[b].jaccard {
			return ranks[a].jaccard > ranks[b].jaccard
		}
		return ranks[a].pos < ranks[b].pos
	})

	if len(ranks) > topK {
		ranks = ranks[:topK]
	}
	out := make([]int, len(ranks))
	for i, r := range ranks {
		out[i] = r.pos
	}
	return out
}

// trigrams returns the set of rune trigrams of s padded with two leading and one trailing space.
func trigrams(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	r := []rune("  " + s + " ")
	set := make(map[string]struct{}, len(r))
	for i := 0; i+3 <= len(r); i++ {
		set[string(r[i:i+3])] = struct{}{}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b| over the trigram sets of two strings.
func Jaccard(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(ta)+len(tb)-inter)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
