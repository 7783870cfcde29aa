// Package segment turns talk pages into numbered, attributed turns.
package segment

import (
	"unicode/utf8"

	"github.com/dgallion1/talkturns/internal/talk"
)

// Draft is a turn before page fields and numbering are attached.
type Draft struct {
	Speaker string
	Text    string
	Kind    talk.MatchKind
}

// BuildTurns cuts text at the given matches, which must be ordered and
// non-overlapping as Resolve returns them. Each match closes one turn whose
// utterance runs from the end of the previous match to the start of this one.
// The text after the last match is returned as the unattributed tail.
// Speakers are cut to their last maxRunes runes; maxRunes <= 0 selects
// talk.MaxSpeakerRunes.
func BuildTurns(text string, matches []talk.SignatureMatch, maxRunes int) ([]Draft, string) {
	if maxRunes <= 0 {
		maxRunes = talk.MaxSpeakerRunes
	}
	drafts := make([]Draft, 0, len(matches))
	cursor := 0
	for _, m := range matches {
		drafts = append(drafts, Draft{
			Speaker: TruncateSpeaker(m.Speaker, maxRunes),
			Text:    text[cursor:m.Start],
			Kind:    m.Kind,
		})
		cursor = m.End
	}
	return drafts, text[cursor:]
}

// TruncateSpeaker keeps the last max runes of name.
func TruncateSpeaker(name string, max int) string {
	if utf8.RuneCountInString(name) <= max {
		return name
	}
	r := []rune(name)
	return string(r[len(r)-max:])
}
