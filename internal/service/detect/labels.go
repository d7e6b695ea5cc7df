package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxLabelLength = 120

var whitespaceRe = regexp.MustCompile(`\s+`)

// resolveLabel extracts the human-readable question for a field. The
// priority is fixed: explicit semantic labels trump positional heuristics,
// and the first non-empty candidate wins.
func resolveLabel(doc *goquery.Document, s *goquery.Selection) (label, source string) {
	if id, ok := s.Attr("id"); ok && id != "" {
		if text := cleanLabel(doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First().Text()); text != "" {
			return text, "label-for"
		}
	}

	if wrapper := s.Closest("label"); wrapper.Length() > 0 {
		if text := cleanLabel(wrapper.Text()); text != "" {
			return text, "label-wrap"
		}
	}

	if aria := cleanLabel(s.AttrOr("aria-label", "")); aria != "" {
		return aria, "aria-label"
	}

	for _, attr := range []string{"data-label", "data-field-label", "data-name"} {
		if hint := cleanLabel(s.AttrOr(attr, "")); hint != "" {
			return hint, attr
		}
	}

	if text := nearbyTextAbove(s); text != "" {
		return text, "nearby-above"
	}

	if text := nearbyTextLeft(s); text != "" {
		return text, "nearby-left"
	}

	if placeholder := cleanLabel(s.AttrOr("placeholder", "")); placeholder != "" {
		return placeholder, "placeholder"
	}

	if name := s.AttrOr("name", ""); name != "" {
		return humanize(name), "name"
	}

	if id := s.AttrOr("id", ""); id != "" {
		return humanize(id), "id"
	}

	return "", ""
}

// nearbyTextAbove scans preceding siblings, then the parent's preceding
// sibling, for a short text run. Stops at other fields so one label is not
// borrowed across rows.
func nearbyTextAbove(s *goquery.Selection) string {
	for prev := s.Prev(); prev.Length() > 0; prev = prev.Prev() {
		if prev.Is("input, select, textarea, button") {
			break
		}
		if text := cleanLabel(prev.Text()); text != "" {
			return text
		}
	}

	parent := s.Parent()
	if parent.Length() == 0 {
		return ""
	}
	prev := parent.Prev()
	if prev.Length() == 0 || prev.Find("input, select, textarea").Length() > 0 {
		return ""
	}
	return cleanLabel(prev.Text())
}

// nearbyTextLeft returns the last bare text node before the element inside
// its parent, the usual shape of table- and inline-layout forms.
func nearbyTextLeft(s *goquery.Selection) string {
	node := s.Get(0)
	if node == nil || node.Parent == nil {
		return ""
	}

	var last string
	for c := node.Parent.FirstChild; c != nil && c != node; c = c.NextSibling {
		if c.Type == html.TextNode {
			if text := cleanLabel(c.Data); text != "" {
				last = text
			}
		}
	}
	return last
}

func cleanLabel(s string) string {
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = strings.TrimRight(s, ":*")
	s = strings.TrimSpace(s)
	if len(s) > maxLabelLength {
		return ""
	}
	return s
}

// humanize turns attribute identifiers like "billing_first-name" into
// "billing first name".
func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	s = camelRe.ReplaceAllString(s, "$1 $2")
	return strings.ToLower(whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " "))
}

var camelRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
