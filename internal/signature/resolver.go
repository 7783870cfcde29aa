package signature

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/dgallion1/talkturns/internal/talk"
)

// Resolve locates the speaker markers in one subsection of normalized text.
// Dated sign-offs are found first; dash signatures are then searched for in
// the text with those spans masked out; the last-paragraph fallback runs
// last. The result is ordered by end offset (then start) and no two spans
// overlap. The second return value counts the spans that had to be clipped.
func Resolve(text string, p Patterns) ([]talk.SignatureMatch, int) {
	var claims Claims
	var matches []talk.SignatureMatch

	if p.Dated != nil {
		for _, loc := range p.Dated.FindAllStringSubmatchIndex(text, -1) {
			m := datedMatch(text, loc, p.Dated)
			claims.Add(m.Start, m.End)
			matches = append(matches, m)
		}
	}

	if p.Signature != nil {
		masked := claims.Mask(text)
		name := p.Signature.SubexpIndex("name")
		var found []talk.SignatureMatch
		for _, loc := range p.Signature.FindAllStringSubmatchIndex(masked, -1) {
			if claims.Overlaps(loc[0], loc[1]) {
				continue
			}
			found = append(found, talk.SignatureMatch{
				Speaker: strings.TrimSpace(group(text, loc, name)),
				Start:   loc[0],
				End:     loc[1],
				Kind:    talk.Signature,
			})
		}
		for _, m := range found {
			claims.Add(m.Start, m.End)
		}
		matches = append(matches, found...)
	}

	if p.LastParagraph {
		if m, ok := lastParagraph(text); ok && !claims.Overlaps(m.Start, m.End) {
			matches = append(matches, m)
		}
	}

	slices.SortStableFunc(matches, func(a, b talk.SignatureMatch) int {
		if c := cmp.Compare(a.End, b.End); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return matches, clip(matches)
}

// datedMatch turns one dated-pattern hit into a match. The span starts at
// the dash when the sign-off is introduced by one, otherwise at the first
// non-blank byte after the anchor, and runs to the end of the timestamp.
func datedMatch(text string, loc []int, re *regexp.Regexp) talk.SignatureMatch {
	m := talk.SignatureMatch{End: loc[1], Kind: talk.DatedSignoff}

	if d := re.SubexpIndex("dash"); d >= 0 && loc[2*d] >= 0 {
		m.Start = loc[2*d]
	} else {
		from := loc[0]
		if a := re.SubexpIndex("anchor"); a >= 0 && loc[2*a+1] >= 0 {
			from = loc[2*a+1]
		}
		m.Start = from + (len(text[from:]) - len(strings.TrimLeft(text[from:], " \t")))
	}

	if ip := re.SubexpIndex("ip"); ip >= 0 && loc[2*ip] >= 0 {
		m.Speaker = group(text, loc, ip)
		return m
	}

	n := re.SubexpIndex("name")
	name := group(text, loc, n)
	// A dash inside the name introduces the real signature.
	if i, w := lastDash(name); i >= 0 {
		m.Start = loc[2*n] + i
		name = name[i+w:]
	}
	m.Speaker = strings.TrimSpace(name)
	return m
}

func lastDash(s string) (int, int) {
	i := strings.LastIndex(s, "--")
	j := strings.LastIndex(s, "—")
	switch {
	case i < 0 && j < 0:
		return -1, 0
	case j > i:
		return j, len("—")
	default:
		return i, 2
	}
}

// lastParagraph proposes the final line of text as a bare sign-off when it
// holds at most three words.
func lastParagraph(text string) (talk.SignatureMatch, bool) {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	lineStart := strings.LastIndexByte(trimmed, '\n') + 1
	line := trimmed[lineStart:]
	lead := len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
	line = line[lead:]
	if line == "" || len(strings.Fields(line)) > 3 {
		return talk.SignatureMatch{}, false
	}
	start := lineStart + lead
	return talk.SignatureMatch{
		Speaker: line,
		Start:   start,
		End:     start + len(line),
		Kind:    talk.LastParagraph,
	}, true
}

// clip shortens each match that runs into its successor, back to front,
// and returns how many were shortened.
func clip(m []talk.SignatureMatch) int {
	n := 0
	for i := len(m) - 2; i >= 0; i-- {
		if m[i+1].Start < m[i].End {
			m[i].End = m[i+1].Start
			if m[i].Start > m[i].End {
				m[i].Start = m[i].End
			}
			n++
		}
	}
	return n
}

func group(text string, loc []int, i int) string {
	if i < 0 || loc[2*i] < 0 {
		return ""
	}
	return text[loc[2*i]:loc[2*i+1]]
}
