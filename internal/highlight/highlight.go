package highlight

import (
	"sort"
	"strings"
)

// Highlight wraps every case-insensitive occurrence of a configured phrase
// in its color's ANSI styling. Colors are applied in the rule set's
// iteration order; within a color, phrases are matched longest-first. Once
// a range of text has matched, no later phrase may match inside it again:
// a scratch copy of the lowercased text is blanked out at each accepted
// match before the next phrase is searched, which is what prevents nested
// or overlapping wraps.
func (r *Rules) Highlight(text string) string {
	entries := r.snapshot()
	if len(entries) == 0 || text == "" {
		return text
	}

	scratch := []byte(strings.ToLower(text))
	var spans []span

	for _, e := range entries {
		phrases := append([]string(nil), e.Phrases...)
		sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })

		for _, phrase := range phrases {
			needle := strings.ToLower(phrase)
			if needle == "" {
				continue
			}
			for _, m := range findAll(scratch, needle) {
				spans = append(spans, span{start: m[0], end: m[1], color: e.Color})
				for i := m[0]; i < m[1]; i++ {
					scratch[i] = 0 // blank: can never match any further phrase
				}
			}
		}
	}

	if len(spans) == 0 {
		return text
	}
	sortSpans(spans)
	return applySpans(text, spans)
}

// findAll returns non-overlapping [start,end) byte ranges where needle
// occurs in haystack, scanning left to right.
func findAll(haystack []byte, needle string) [][2]int {
	var matches [][2]int
	n := len(needle)
	if n == 0 {
		return matches
	}
	pos := 0
	for pos+n <= len(haystack) {
		idx := strings.Index(string(haystack[pos:]), needle)
		if idx < 0 {
			break
		}
		start := pos + idx
		end := start + n
		matches = append(matches, [2]int{start, end})
		pos = end
	}
	return matches
}

// applySpans builds the final string in one left-to-right pass, wrapping
// each span of the original (not lowercased) text with its color.
func applySpans(text string, spans []span) string {
	var b strings.Builder
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue // defensive: overlapping spans should not occur, skip if they do
		}
		b.WriteString(text[cursor:s.start])
		c := colorFor(s.color)
		if c == nil {
			b.WriteString(text[s.start:s.end])
		} else {
			b.WriteString(c.Sprint(text[s.start:s.end]))
		}
		cursor = s.end
	}
	b.WriteString(text[cursor:])
	return b.String()
}
