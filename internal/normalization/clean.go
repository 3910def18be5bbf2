package normalization

import (
	"github.com/yungbote/podreach-backend/internal/domain/media"
)

// RepairReport lists which URL columns held emails and what was salvaged.
type RepairReport struct {
	ClearedFields  []string
	SalvagedEmails []string
	FilledContact  bool
}

func (r RepairReport) Changed() bool {
	return len(r.ClearedFields) > 0 || r.FilledContact
}

func urlFields(m *media.Media) map[string]**string {
	return map[string]**string{
		"website":               &m.Website,
		"image_url":             &m.ImageURL,
		"podcast_twitter_url":   &m.TwitterURL,
		"podcast_instagram_url": &m.InstagramURL,
		"podcast_tiktok_url":    &m.TikTokURL,
		"podcast_linkedin_url":  &m.LinkedInURL,
		"podcast_facebook_url":  &m.FacebookURL,
		"podcast_youtube_url":   &m.YouTubeURL,
		"host_twitter_url":      &m.HostTwitterURL,
		"host_linkedin_url":     &m.HostLinkedInURL,
	}
}

// RepairMedia clears URL columns that hold email addresses. The first salvaged
// address fills contact_email only when that column is empty.
func RepairMedia(m *media.Media) RepairReport {
	var rep RepairReport
	if m == nil {
		return rep
	}
	fields := urlFields(m)
	for _, name := range sortedFieldNames() {
		ptr := fields[name]
		if *ptr == nil || !LooksLikeEmail(**ptr) {
			continue
		}
		if email := Email(**ptr); email != "" {
			rep.SalvagedEmails = append(rep.SalvagedEmails, email)
		}
		*ptr = nil
		rep.ClearedFields = append(rep.ClearedFields, name)
	}
	if (m.ContactEmail == nil || *m.ContactEmail == "") && len(rep.SalvagedEmails) > 0 {
		e := rep.SalvagedEmails[0]
		m.ContactEmail = &e
		rep.FilledContact = true
	}
	return rep
}

// RepairProfile applies the same rule to an EnrichedProfile before merge.
func RepairProfile(p *media.EnrichedProfile) RepairReport {
	var rep RepairReport
	if p == nil {
		return rep
	}
	check := func(name string, ptr **string) {
		if *ptr == nil || !LooksLikeEmail(**ptr) {
			return
		}
		if email := Email(**ptr); email != "" {
			rep.SalvagedEmails = append(rep.SalvagedEmails, email)
		}
		*ptr = nil
		rep.ClearedFields = append(rep.ClearedFields, name)
	}
	check("website", &p.Website)
	check("image_url", &p.ImageURL)
	check("host_twitter_url", &p.HostTwitterURL)
	check("host_linkedin_url", &p.HostLinkedInURL)
	for _, pl := range media.Platforms {
		raw := p.SocialURL(pl)
		if raw == "" || !LooksLikeEmail(raw) {
			continue
		}
		if email := Email(raw); email != "" {
			rep.SalvagedEmails = append(rep.SalvagedEmails, email)
		}
		delete(p.SocialURLs, pl)
		rep.ClearedFields = append(rep.ClearedFields, "podcast_"+string(pl)+"_url")
	}
	if (p.ContactEmail == nil || *p.ContactEmail == "") && len(rep.SalvagedEmails) > 0 {
		e := rep.SalvagedEmails[0]
		p.ContactEmail = &e
		rep.FilledContact = true
	}
	return rep
}

func sortedFieldNames() []string {
	return []string{
		"website",
		"image_url",
		"podcast_twitter_url",
		"podcast_instagram_url",
		"podcast_tiktok_url",
		"podcast_linkedin_url",
		"podcast_facebook_url",
		"podcast_youtube_url",
		"host_twitter_url",
		"host_linkedin_url",
	}
}
