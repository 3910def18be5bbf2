package sources

import "sort"

// Kind labels where a fact came from. Weights order the kinds by trust.
type Kind string

const (
	ManualEntry         Kind = "manual_entry"
	RSSOwner            Kind = "rss_owner"
	EpisodeTranscript   Kind = "episode_transcript"
	AIAnalysis          Kind = "ai_analysis"
	PodcastDescription  Kind = "podcast_description"
	WebSearch           Kind = "web_search"
	UnlabeledExtraction Kind = "unlabeled_extraction"
	SocialMediaBio      Kind = "social_media_bio"
)

var Weights = map[Kind]float64{
	ManualEntry:         1.0,
	RSSOwner:            0.9,
	EpisodeTranscript:   0.85,
	AIAnalysis:          0.8,
	PodcastDescription:  0.7,
	WebSearch:           0.6,
	UnlabeledExtraction: 0.5,
	SocialMediaBio:      0.4,
}

// Weight returns the fixed trust weight; unknown kinds count as unlabeled extraction.
func Weight(k Kind) float64 {
	if w, ok := Weights[k]; ok {
		return w
	}
	return Weights[UnlabeledExtraction]
}

// Outranks reports whether a is strictly more trusted than b.
func Outranks(a, b Kind) bool {
	return Weight(a) > Weight(b)
}

// Best returns the most trusted kind in ks, or UnlabeledExtraction when ks is empty.
func Best(ks []Kind) Kind {
	best := UnlabeledExtraction
	bestW := -1.0
	for _, k := range ks {
		if w := Weight(k); w > bestW {
			best, bestW = k, w
		}
	}
	return best
}

// Strings returns the distinct kinds, sorted by descending weight then name.
func Strings(ks []Kind) []string {
	seen := map[Kind]bool{}
	uniq := make([]Kind, 0, len(ks))
	for _, k := range ks {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, k)
	}
	sort.Slice(uniq, func(i, j int) bool {
		wi, wj := Weight(uniq[i]), Weight(uniq[j])
		if wi != wj {
			return wi > wj
		}
		return uniq[i] < uniq[j]
	})
	out := make([]string, len(uniq))
	for i, k := range uniq {
		out[i] = string(k)
	}
	return out
}

func Parse(ss []string) []Kind {
	out := make([]Kind, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, Kind(s))
		}
	}
	return out
}
