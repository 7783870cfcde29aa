package segment

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/dgallion1/talkturns/internal/signature"
	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/dgallion1/talkturns/internal/wikitext"
)

// Stats counts the recoverable ambiguities met while segmenting.
type Stats struct {
	Subsections          int `json:"subsections"`
	EmptySubsections     int `json:"empty_subsections"`
	ZeroMatchSubsections int `json:"zero_match_subsections"`
	Overlaps             int `json:"overlaps"`
	EmptySpeakers        int `json:"empty_speakers"`
	UnattributedBytes    int `json:"unattributed_bytes"`

	Signatures     int `json:"signatures"`
	DatedSignoffs  int `json:"dated_signoffs"`
	LastParagraphs int `json:"last_paragraphs"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Subsections += o.Subsections
	s.EmptySubsections += o.EmptySubsections
	s.ZeroMatchSubsections += o.ZeroMatchSubsections
	s.Overlaps += o.Overlaps
	s.EmptySpeakers += o.EmptySpeakers
	s.UnattributedBytes += o.UnattributedBytes
	s.Signatures += o.Signatures
	s.DatedSignoffs += o.DatedSignoffs
	s.LastParagraphs += o.LastParagraphs
}

func (s *Stats) countKind(k talk.MatchKind) {
	switch k {
	case talk.Signature:
		s.Signatures++
	case talk.DatedSignoff:
		s.DatedSignoffs++
	case talk.LastParagraph:
		s.LastParagraphs++
	}
}

// Result is the outcome of segmenting one page.
type Result struct {
	Turns  []talk.Turn
	Stats  Stats
	Issues []talk.MarkupIssue
}

// Segmenter runs split, resolve and build over whole pages. It holds no
// per-page state and is safe for concurrent use.
type Segmenter struct {
	lib        *signature.Library
	log        *slog.Logger
	maxSpeaker int
	resolve    func(string, signature.Patterns) ([]talk.SignatureMatch, int)
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger sets the logger used for per-page diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Segmenter) { s.log = log }
}

// WithSpeakerLimit overrides talk.MaxSpeakerRunes.
func WithSpeakerLimit(n int) Option {
	return func(s *Segmenter) {
		if n > 0 {
			s.maxSpeaker = n
		}
	}
}

// New returns a Segmenter resolving against lib. Without options it logs to
// slog.Default and caps speakers at talk.MaxSpeakerRunes.
func New(lib *signature.Library, opts ...Option) *Segmenter {
	s := &Segmenter{
		lib:        lib,
		log:        slog.Default(),
		maxSpeaker: talk.MaxSpeakerRunes,
		resolve:    signature.Resolve,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Library returns the pattern library the segmenter resolves against.
func (s *Segmenter) Library() *signature.Library { return s.lib }

// SegmentPage splits page into subsections, attributes each one and numbers
// the resulting turns 1..N in document order. An unknown language is a
// *talk.ConfigError; any other failure is a *talk.PageError and the page
// yields no turns.
func (s *Segmenter) SegmentPage(page talk.Page) (res Result, err error) {
	patterns, err := s.lib.Lookup(page.Language)
	if err != nil {
		return Result{}, err
	}
	log := s.log.With("page_id", page.ID, "lang", page.Language)

	defer func() {
		if r := recover(); r != nil {
			log.Error("segmentation panicked", "panic", r, "stack", string(debug.Stack()))
			res = Result{}
			err = &talk.PageError{PageID: page.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	sp := wikitext.NewSplitter(page.Text)
	for {
		sub, ok := sp.Next()
		if !ok {
			break
		}
		drafts, st := s.segment(sub.Text, patterns, log.With("subsection", sub.Index))
		res.Stats.Add(st)
		for _, d := range drafts {
			res.Turns = append(res.Turns, talk.Turn{
				PageID:    page.ID,
				UnifiedID: page.UnifiedID,
				Title:     page.Title,
				Number:    len(res.Turns) + 1,
				Speaker:   d.Speaker,
				Text:      d.Text,
				Language:  page.Language,
			})
		}
	}

	res.Issues = sp.Issues()
	for _, issue := range res.Issues {
		log.Warn("malformed markup", "issue", issue.Kind, "offset", issue.Offset)
	}
	return res, nil
}

// SegmentText attributes one already-normalized subsection.
func (s *Segmenter) SegmentText(text string, lang talk.Language) ([]Draft, Stats, error) {
	patterns, err := s.lib.Lookup(lang)
	if err != nil {
		return nil, Stats{}, err
	}
	drafts, st := s.segment(text, patterns, s.log.With("lang", lang))
	return drafts, st, nil
}

func (s *Segmenter) segment(text string, p signature.Patterns, log *slog.Logger) ([]Draft, Stats) {
	st := Stats{Subsections: 1}
	if text == "" {
		st.EmptySubsections++
		return nil, st
	}

	matches, clipped := s.resolve(text, p)
	st.Overlaps = clipped
	if clipped > 0 {
		log.Debug("clipped overlapping matches", "count", clipped)
	}

	drafts, tail := BuildTurns(text, matches, s.maxSpeaker)
	st.UnattributedBytes = len(tail)
	if len(matches) == 0 {
		st.ZeroMatchSubsections++
		log.Debug("no speaker markers found", "bytes", len(text))
		return nil, st
	}
	if len(tail) > 0 {
		log.Debug("unattributed trailing text", "bytes", len(tail))
	}

	for _, d := range drafts {
		st.countKind(d.Kind)
		if d.Speaker == "" {
			st.EmptySpeakers++
			log.Warn("turn with empty speaker", "kind", d.Kind.String())
		}
	}
	return drafts, st
}
