package vetting

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
)

const vettingSystem = `You vet podcasts for a guest-booking campaign.
Judge how well the podcast fits the campaign's ideal podcast description.
Use only the information provided. Do not invent audience data, hosts or episodes.
When a fact is missing, say so in the checklist instead of guessing.
Host names marked UNVERIFIED may be wrong; do not treat them as established facts.`

// checklistCriteria are the checklist keys the model must fill.
var checklistCriteria = []string{
	"topic_alignment",
	"audience_fit",
	"guest_format",
	"content_recency",
	"host_fit",
	"red_flags",
}

func vettingSchema() map[string]any {
	criterion := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"met":      map[string]any{"type": "boolean"},
			"evidence": map[string]any{"type": "string"},
		},
		"required":             []string{"met", "evidence"},
		"additionalProperties": false,
	}
	props := map[string]any{}
	for _, k := range checklistCriteria {
		props[k] = criterion
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"vetting_score":     map[string]any{"type": "number", "minimum": 0, "maximum": 100},
			"vetting_reasoning": map[string]any{"type": "string"},
			"vetting_checklist": map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             checklistCriteria,
				"additionalProperties": false,
			},
		},
		"required":             []string{"vetting_score", "vetting_reasoning", "vetting_checklist"},
		"additionalProperties": false,
	}
}

type hostLine struct {
	Name       string
	Confidence float64
	Verified   bool
}

// hostLines splits the media's hosts at threshold using the per-name confidence
// written by the host verifier. Names never verified count as unverified.
func hostLines(m *types.Media, threshold float64) []hostLine {
	conf := m.HostNamesDiscoveryConfidence.Data()
	out := make([]hostLine, 0, len(m.HostNames))
	for _, n := range m.HostNames {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		c, ok := conf[n]
		out = append(out, hostLine{Name: n, Confidence: c, Verified: ok && c >= threshold})
	}
	return out
}

func unverifiedNames(hosts []hostLine) []string {
	var out []string
	for _, h := range hosts {
		if !h.Verified {
			out = append(out, h.Name)
		}
	}
	return out
}

func vettingPrompt(c *types.Campaign, m *types.Media, d *types.Discovery, hosts []hostLine, maxSummary int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CAMPAIGN: %s\n", c.Name)
	fmt.Fprintf(&b, "IDEAL PODCAST:\n%s\n", pointers.Deref(c.IdealPodcastDescription))
	if len(c.Keywords) > 0 {
		fmt.Fprintf(&b, "CAMPAIGN KEYWORDS: %s\n", strings.Join(c.Keywords, ", "))
	}
	if d.Keyword != "" {
		fmt.Fprintf(&b, "DISCOVERED VIA KEYWORD: %s\n", d.Keyword)
	}

	b.WriteString("\nPODCAST\n")
	fmt.Fprintf(&b, "Title: %s\n", firstNonEmpty(m.Title, m.Name))
	fmt.Fprintf(&b, "Description: %s\n", firstNonEmpty(pointers.Deref(m.AIDescription), pointers.Deref(m.Description)))
	if m.Category != nil {
		fmt.Fprintf(&b, "Category: %s\n", *m.Category)
	}
	if m.Language != nil {
		fmt.Fprintf(&b, "Language: %s\n", *m.Language)
	}
	if m.TotalEpisodes != nil {
		fmt.Fprintf(&b, "Episodes: %d\n", *m.TotalEpisodes)
	}
	if m.LatestEpisodeDate != nil {
		fmt.Fprintf(&b, "Latest episode: %s\n", m.LatestEpisodeDate.Format("2006-01-02"))
	}
	if m.QualityScore != nil {
		fmt.Fprintf(&b, "Quality score (0-100): %.1f\n", *m.QualityScore)
	}

	if len(hosts) > 0 {
		b.WriteString("Hosts:\n")
		for _, h := range hosts {
			if h.Verified {
				fmt.Fprintf(&b, "- %s (verified, confidence %.2f)\n", h.Name, h.Confidence)
			} else {
				fmt.Fprintf(&b, "- %s (UNVERIFIED, confidence %.2f)\n", h.Name, h.Confidence)
			}
		}
	}

	if s := strings.TrimSpace(pointers.Deref(m.EpisodeSummariesCompiled)); s != "" {
		if maxSummary > 0 && len(s) > maxSummary {
			s = s[:maxSummary]
		}
		fmt.Fprintf(&b, "\nRECENT EPISODES:\n%s\n", s)
	}
	return b.String()
}

type vettingOutput struct {
	Score     float64
	Reasoning string
	Checklist map[string]any
}

// coerceVetting validates model output. The checklist is sometimes delivered as a
// JSON-encoded string; it is decoded, and kept under "notes" when it is not JSON.
func coerceVetting(obj map[string]any) (vettingOutput, error) {
	var out vettingOutput
	if obj == nil {
		return out, fmt.Errorf("empty response")
	}
	score, ok := toFloat(obj["vetting_score"])
	if !ok {
		return out, fmt.Errorf("vetting_score missing or not a number")
	}
	out.Score = math.Round(math.Max(0, math.Min(100, score))*100) / 100
	out.Reasoning, _ = obj["vetting_reasoning"].(string)
	out.Reasoning = strings.TrimSpace(out.Reasoning)
	out.Checklist = repairChecklist(obj["vetting_checklist"])
	return out, nil
}

func repairChecklist(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return map[string]any{}
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err == nil && m != nil {
			return m
		}
		return map[string]any{"notes": s}
	}
	return map[string]any{}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func matchedKeywords(d *types.Discovery) []string {
	if k := strings.TrimSpace(d.Keyword); k != "" {
		return []string{k}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
