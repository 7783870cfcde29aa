package wikitext

import (
	"regexp"

	"github.com/dgallion1/talkturns/internal/talk"
)

var (
	headingLine = regexp.MustCompile(`(?m)^=+.*[^=\s].*=+[ \t]*$`)
	ruleMarker  = regexp.MustCompile(`(?m)^-{4,}`)
)

// Splitter yields the subsections of one raw page in document order.
// It is a one-shot cursor: once Next reports false it stays exhausted.
type Splitter struct {
	raw     string
	pos     int
	done    bool
	pending []string
	index   int
	issues  []talk.MarkupIssue
}

// NewSplitter prepares raw markup for splitting. No work is done until Next.
func NewSplitter(raw string) *Splitter {
	return &Splitter{raw: prepare(raw)}
}

// Next returns the next normalized subsection. The lead block before the
// first heading is always returned, even when empty.
func (s *Splitter) Next() (talk.Subsection, bool) {
	for len(s.pending) == 0 {
		if s.done {
			return talk.Subsection{}, false
		}
		s.pending = ruleMarker.Split(s.nextBlock(), -1)
	}

	piece := s.pending[0]
	s.pending = s.pending[1:]

	text, issues := Normalize(piece)
	s.issues = append(s.issues, issues...)
	sub := talk.Subsection{Index: s.index, Text: text}
	s.index++
	return sub, true
}

// Issues returns the markup issues collected from the subsections yielded so far.
func (s *Splitter) Issues() []talk.MarkupIssue {
	return s.issues
}

// nextBlock returns the text up to the next heading line and moves past it.
func (s *Splitter) nextBlock() string {
	rest := s.raw[s.pos:]
	loc := headingLine.FindStringIndex(rest)
	if loc == nil {
		s.done = true
		s.pos = len(s.raw)
		return rest
	}
	s.pos += loc[1]
	return rest[:loc[0]]
}

// Split collects every subsection of raw.
func Split(raw string) ([]talk.Subsection, []talk.MarkupIssue) {
	sp := NewSplitter(raw)
	var subs []talk.Subsection
	for {
		sub, ok := sp.Next()
		if !ok {
			break
		}
		subs = append(subs, sub)
	}
	return subs, sp.Issues()
}
