package detect

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// buildSelector produces a CSS selector the page script can re-resolve.
// Stable attributes win over structural paths: id first, then name, then an
// nth-of-type chain up to body.
func buildSelector(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" && !strings.ContainsAny(id, " \t\"'") {
		return "#" + id
	}

	tag := goquery.NodeName(s)
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}

	var parts []string
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		curTag := goquery.NodeName(cur)
		if curTag == "body" || curTag == "html" || curTag == "#document" {
			break
		}

		part := curTag
		if idx := nthOfType(cur, curTag); idx > 1 {
			part = fmt.Sprintf("%s:nth-of-type(%d)", curTag, idx)
		}
		parts = append([]string{part}, parts...)

		if id, ok := cur.Attr("id"); ok && id != "" && !strings.ContainsAny(id, " \t\"'") {
			parts[0] = "#" + id
			break
		}
	}
	return strings.Join(parts, " > ")
}

func nthOfType(s *goquery.Selection, tag string) int {
	idx := 1
	for prev := s.Prev(); prev.Length() > 0; prev = prev.Prev() {
		if goquery.NodeName(prev) == tag {
			idx++
		}
	}
	return idx
}
