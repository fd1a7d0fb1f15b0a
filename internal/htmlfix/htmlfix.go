// Package htmlfix repairs HTML documents that a model wrote more than once
// into the same response.
package htmlfix

import (
	"regexp"
	"strings"
)

var (
	reDoctype   = regexp.MustCompile(`(?i)<!doctype[^>]*>`)
	reHTMLClose = regexp.MustCompile(`(?i)</html\s*>`)
)

// DoctypeCount returns the number of document type declarations in doc
func DoctypeCount(doc string) int {
	return len(reDoctype.FindAllStringIndex(doc, -1))
}

// StripDuplicateHeaders leaves exactly one document declaration.
// When the text is several complete documents glued together, the longest
// one is kept; otherwise the extra declarations are removed in place.
// The result is a fixed point: applying it twice changes nothing.
func StripDuplicateHeaders(doc string) string {
	locs := reDoctype.FindAllStringIndex(doc, -1)
	if len(locs) <= 1 {
		return doc
	}

	segments := make([]string, len(locs))
	complete := true
	for i, loc := range locs {
		end := len(doc)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segments[i] = doc[loc[0]:end]
		if !reHTMLClose.MatchString(segments[i]) {
			complete = false
		}
	}

	if complete {
		best := segments[0]
		for _, s := range segments[1:] {
			if len(strings.TrimSpace(s)) > len(strings.TrimSpace(best)) {
				best = s
			}
		}
		return strings.TrimSpace(best) + "\n"
	}

	first := locs[0][1]
	return doc[:first] + reDoctype.ReplaceAllString(doc[first:], "")
}
