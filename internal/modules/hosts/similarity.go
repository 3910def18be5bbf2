package hosts

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/domain/sources"
	"github.com/yungbote/podreach-backend/internal/normalization"
)

const containmentSimilarity = 0.9

// NameSimilarity scores two spellings of a person's name in [0,1]. Honorifics,
// accents, case and punctuation are ignored. A name contained in the other and
// names that differ only by initials score 0.9; everything else uses the
// Levenshtein ratio.
func NameSimilarity(a, b string) float64 {
	fa, fb := normalization.FoldName(a), normalization.FoldName(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1
	}
	if strings.Contains(fa, fb) || strings.Contains(fb, fa) {
		return containmentSimilarity
	}
	ia, ib := stripInitials(fa), stripInitials(fb)
	if ia != "" && ib != "" && (strings.Contains(ia, ib) || strings.Contains(ib, ia)) {
		return containmentSimilarity
	}
	return levenshteinRatio(fa, fb)
}

func stripInitials(folded string) string {
	words := strings.Fields(folded)
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) > 1 {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func levenshteinRatio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Confidence is the best single source weight plus 0.05 per distinct source,
// the bonus capped at four sources and the total at 1.0.
func Confidence(kinds []types.SourceKind) float64 {
	distinct := sources.Parse(sources.Strings(kinds))
	if len(distinct) == 0 {
		return 0
	}
	best := sources.Weight(sources.Best(distinct))
	score := best + 0.05*float64(min(4, len(distinct)))
	if score > 1 {
		return 1
	}
	return roundTo(score, 4)
}

func roundTo(f float64, places int) float64 {
	p := 1.0
	for i := 0; i < places; i++ {
		p *= 10
	}
	return float64(int64(f*p+0.5)) / p
}

// Consolidate greedily groups name variants. Candidates are visited by source
// count, best source weight and length; each unassigned candidate becomes the
// representative for every remaining name within threshold of it.
func Consolidate(atts []types.HostAttribution, threshold float64) []types.HostAttribution {
	ordered := make([]types.HostAttribution, 0, len(atts))
	for _, a := range atts {
		if normalization.FoldName(a.Name) != "" {
			ordered = append(ordered, a)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := len(sources.Strings(ordered[i].Sources)), len(sources.Strings(ordered[j].Sources))
		if si != sj {
			return si > sj
		}
		wi, wj := sources.Weight(sources.Best(ordered[i].Sources)), sources.Weight(sources.Best(ordered[j].Sources))
		if wi != wj {
			return wi > wj
		}
		return len(ordered[i].Name) > len(ordered[j].Name)
	})

	used := make([]bool, len(ordered))
	var out []types.HostAttribution
	for i, rep := range ordered {
		if used[i] {
			continue
		}
		used[i] = true
		group := types.HostAttribution{Name: rep.Name, Sources: append([]types.SourceKind(nil), rep.Sources...)}
		for j := i + 1; j < len(ordered); j++ {
			if used[j] {
				continue
			}
			if NameSimilarity(rep.Name, ordered[j].Name) >= threshold {
				used[j] = true
				group.Sources = append(group.Sources, ordered[j].Sources...)
			}
		}
		group.Sources = sources.Parse(sources.Strings(group.Sources))
		out = append(out, group)
	}
	return out
}
