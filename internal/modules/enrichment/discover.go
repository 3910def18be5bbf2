package enrichment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/podreach-backend/internal/domain"
	"github.com/yungbote/podreach-backend/internal/normalization"
	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/pkg/pointers"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

const (
	factHostNames       = "host_names"
	factWebsite         = "website"
	factHostTwitterURL  = "host_twitter_url"
	factHostLinkedInURL = "host_linkedin_url"
)

// fact is one piece of profile data the agent searches for when the row lacks it.
type fact struct {
	key     string
	missing func(p *types.EnrichedProfile) bool
	query   func(show, host string) string
}

func platformFact(pl types.Platform, label string) fact {
	return fact{
		key:     string(pl) + "_url",
		missing: func(p *types.EnrichedProfile) bool { return p.SocialURL(pl) == "" },
		query:   func(show, _ string) string { return fmt.Sprintf("%q podcast official %s", show, label) },
	}
}

var facts = []fact{
	{
		key:     factHostNames,
		missing: func(p *types.EnrichedProfile) bool { return len(p.Hosts) == 0 },
		query:   func(show, _ string) string { return fmt.Sprintf("%q podcast hosted by", show) },
	},
	platformFact(types.PlatformTwitter, "twitter x account"),
	platformFact(types.PlatformInstagram, "instagram"),
	platformFact(types.PlatformTikTok, "tiktok"),
	platformFact(types.PlatformLinkedIn, "linkedin company page"),
	platformFact(types.PlatformFacebook, "facebook page"),
	platformFact(types.PlatformYouTube, "youtube channel"),
	{
		key:     factWebsite,
		missing: func(p *types.EnrichedProfile) bool { return pointers.Deref(p.Website) == "" },
		query:   func(show, _ string) string { return fmt.Sprintf("%q podcast official website", show) },
	},
	{
		key:     factHostTwitterURL,
		missing: func(p *types.EnrichedProfile) bool { return pointers.Deref(p.HostTwitterURL) == "" },
		query:   func(show, host string) string { return hostQuery(show, host, "twitter") },
	},
	{
		key:     factHostLinkedInURL,
		missing: func(p *types.EnrichedProfile) bool { return pointers.Deref(p.HostLinkedInURL) == "" },
		query:   func(show, host string) string { return hostQuery(show, host, "linkedin") },
	},
}

func hostQuery(show, host, site string) string {
	if host != "" {
		return fmt.Sprintf("%q %s podcast host %s", host, show, site)
	}
	return fmt.Sprintf("%q podcast host %s profile", show, site)
}

func missingFacts(p *types.EnrichedProfile) []fact {
	var out []fact
	for _, f := range facts {
		if f.missing(p) {
			out = append(out, f)
		}
	}
	return out
}

const extractSystem = `You extract podcast profile facts from the supplied text.
Use ONLY the text provided. Never guess or construct a URL or name that does not appear in it.
If the text does not state a value, return null for that field.
host_names lists the people who host the show, not guests or the show itself.`

func extractSchema(missing []fact) map[string]any {
	props := map[string]any{}
	required := make([]string, 0, len(missing))
	for _, f := range missing {
		if f.key == factHostNames {
			props[f.key] = map[string]any{
				"type":  []any{"array", "null"},
				"items": map[string]any{"type": "string"},
			}
		} else {
			props[f.key] = map[string]any{"type": []any{"string", "null"}}
		}
		required = append(required, f.key)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// discover searches once per missing fact and extracts all of them in a single
// structured call grounded in the combined text. Only fatal errors are returned.
func (a *Agent) discover(ctx context.Context, log *logger.Logger, p *types.EnrichedProfile) error {
	if a.d.Search == nil || a.d.AI == nil {
		return nil
	}
	missing := missingFacts(p)
	if len(missing) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("podreach/enrichment").Start(ctx, "enrichment.stage1")
	defer span.End()
	span.SetAttributes(attribute.Int("facts.missing", len(missing)))

	show := firstNonEmpty(p.Title, p.Name)
	if show == "" {
		return nil
	}
	host := ""
	if len(p.Hosts) > 0 {
		host = p.Hosts[0].Name
	}

	texts := make([]string, len(missing))
	var (
		mu    sync.Mutex
		fatal error
	)
	g := &errgroup.Group{}
	g.SetLimit(a.cfg.SearchConcurrency)
	for i, f := range missing {
		g.Go(func() error {
			q := f.query(show, host)
			resp, err := a.d.Search.Search(ctx, q)
			if err != nil {
				if apperr.IsFatal(err) {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
				} else {
					log.Debug("Fact search failed", "fact", f.key, "error", err)
				}
				return nil
			}
			texts[i] = resp.Text()
			return nil
		})
	}
	_ = g.Wait()
	if fatal != nil {
		return fatal
	}

	description := pointers.Deref(p.Description)
	corpus := buildCorpus(description, missing, texts, a.cfg.CorpusMaxChars)
	if strings.TrimSpace(corpus) == "" {
		return nil
	}

	obj, err := a.d.AI.GenerateJSON(ctx, extractSystem, corpus, "podcast_profile_facts", extractSchema(missing))
	if err != nil {
		return degrade(log, "extraction", err)
	}
	applied := applyExtraction(p, obj, corpus, description)
	span.SetAttributes(attribute.Int("facts.found", applied))
	log.Debug("Stage 1 discovery finished", "missing", len(missing), "found", applied)
	return nil
}

func buildCorpus(description string, missing []fact, texts []string, limit int) string {
	var b strings.Builder
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("PODCAST DESCRIPTION:\n")
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	for i, f := range missing {
		if t := strings.TrimSpace(texts[i]); t != "" {
			b.WriteString("SEARCH RESULTS (")
			b.WriteString(f.key)
			b.WriteString("):\n")
			b.WriteString(t)
			b.WriteString("\n\n")
		}
	}
	out := strings.TrimSpace(b.String())
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// applyExtraction keeps only values that appear in corpus and returns how many
// facts were filled.
func applyExtraction(p *types.EnrichedProfile, obj map[string]any, corpus, description string) int {
	lowerCorpus := strings.ToLower(corpus)
	foldedCorpus := " " + normalization.FoldName(corpus) + " "
	foldedDesc := " " + normalization.FoldName(description) + " "
	n := 0

	if raw, ok := obj[factHostNames].([]any); ok && len(p.Hosts) == 0 {
		for _, v := range raw {
			s, _ := v.(string)
			name := normalization.DisplayName(s)
			fn := normalization.FoldName(name)
			if fn == "" || !strings.Contains(foldedCorpus, " "+fn+" ") {
				continue
			}
			if normalization.LooksLikeOrganization(name, p.Name, p.Title) {
				continue
			}
			kind := types.SourceWebSearch
			if strings.Contains(foldedDesc, " "+fn+" ") {
				kind = types.SourcePodcastDescription
			}
			p.AddHost(name, kind)
			n++
		}
	}

	for _, pl := range types.Platforms {
		u := groundedURL(obj[string(pl)+"_url"], lowerCorpus)
		if u == "" || p.SocialURL(pl) != "" {
			continue
		}
		if got, ok := normalization.Platform(u); !ok || got != pl {
			continue
		}
		if pl == types.PlatformLinkedIn && !normalization.IsLinkedInCompany(u) {
			continue
		}
		p.SetSocialURL(pl, u)
		n++
	}

	if u := groundedURL(obj[factWebsite], lowerCorpus); u != "" && pointers.Deref(p.Website) == "" {
		if _, social := normalization.Platform(u); !social {
			p.Website = pointers.String(u)
			n++
		}
	}
	if u := groundedURL(obj[factHostTwitterURL], lowerCorpus); u != "" && pointers.Deref(p.HostTwitterURL) == "" {
		if pl, ok := normalization.Platform(u); ok && pl == types.PlatformTwitter {
			p.HostTwitterURL = pointers.String(u)
			n++
		}
	}
	if u := groundedURL(obj[factHostLinkedInURL], lowerCorpus); u != "" && pointers.Deref(p.HostLinkedInURL) == "" {
		if pl, ok := normalization.Platform(u); ok && pl == types.PlatformLinkedIn && !normalization.IsLinkedInCompany(u) {
			p.HostLinkedInURL = pointers.String(u)
			n++
		}
	}
	return n
}

// groundedURL normalizes v and returns it only when its host and path occur in
// the lowercased corpus.
func groundedURL(v any, lowerCorpus string) string {
	s, _ := v.(string)
	u := normalization.URL(s)
	if u == "" {
		return ""
	}
	core := strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "www.")
	if !strings.Contains(lowerCorpus, core) {
		return ""
	}
	return u
}
