package sitectx

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"

	"github.com/sandevgo/formpilot/internal/core"
)

const bodySnippetLimit = 2000

// siteTypeRules score page text against site categories used to bias
// matching. Highest score wins, ties go to the earlier rule.
var siteTypeRules = []struct {
	siteType string
	keywords []string
}{
	{"job_application", []string{"job", "career", "apply", "application", "resume", "cv", "position", "hiring"}},
	{"ecommerce", []string{"cart", "checkout", "shipping", "order", "shop", "product", "payment"}},
	{"finance", []string{"bank", "loan", "credit", "insurance", "account number", "iban", "mortgage"}},
	{"government", []string{"government", "tax", "visa", "passport", "permit", "citizen", "ministry"}},
	{"healthcare", []string{"patient", "clinic", "health", "medical", "appointment", "doctor"}},
	{"travel", []string{"flight", "hotel", "booking", "reservation", "travel", "passenger"}},
	{"social", []string{"profile", "follow", "friend", "community", "sign up", "register"}},
}

// Extractor derives page-level context from a parsed snapshot.
type Extractor struct {
	sanitizer *bluemonday.Policy
}

func NewExtractor() *Extractor {
	return &Extractor{sanitizer: bluemonday.UGCPolicy()}
}

func (e *Extractor) Extract(doc *goquery.Document, pageURL string) core.WebsiteContext {
	ctx := core.WebsiteContext{
		URL:      pageURL,
		Domain:   domainOf(pageURL),
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		SiteType: "general",
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		ctx.Description = strings.TrimSpace(desc)
	}

	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, ok := s.Attr("content")
		if !ok || content == "" {
			return
		}
		if ctx.OpenGraph == nil {
			ctx.OpenGraph = make(map[string]string)
		}
		ctx.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
	})

	// og:description fills in when the page skips the plain meta tag.
	if ctx.Description == "" {
		ctx.Description = ctx.OpenGraph["description"]
	}

	ctx.SiteType = classify(ctx.Title + " " + ctx.Description + " " + e.bodySnippet(doc))
	return ctx
}

// bodySnippet extracts a bounded run of visible text for classification.
// The snapshot is sanitized first so script and style bodies never leak in.
func (e *Extractor) bodySnippet(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}
	raw, err := body.Html()
	if err != nil {
		return ""
	}

	text, err := html2text.FromString(e.sanitizer.Sanitize(raw), html2text.Options{OmitLinks: true})
	if err != nil {
		return ""
	}
	if len(text) > bodySnippetLimit {
		text = text[:bodySnippetLimit]
	}
	return text
}

func classify(text string) string {
	haystack := strings.ToLower(text)

	best, bestScore := "general", 0
	for _, rule := range siteTypeRules {
		score := 0
		for _, kw := range rule.keywords {
			score += strings.Count(haystack, kw)
		}
		if score > bestScore {
			best, bestScore = rule.siteType, score
		}
	}
	return best
}

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
