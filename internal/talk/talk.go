package talk

// Language is a discussion-page language code, e.g. "en".
type Language string

// Built-in languages. The supported set at runtime is whatever the configured
// pattern library holds.
const (
	English  Language = "en"
	Spanish  Language = "es"
	Japanese Language = "ja"
	Chinese  Language = "zh"
)

// MaxSpeakerRunes bounds Turn.Speaker; longer names keep their trailing runes.
const MaxSpeakerRunes = 127

// Page is one raw discussion page handed in by the extraction tooling.
type Page struct {
	Title     string   // Page title, e.g. "Talk:Algeria"
	ID        string   // Wiki page id
	UnifiedID string   // Cross-language id from page matching (may be empty)
	Language  Language // Wiki language
	Text      string   // Raw wiki markup
}

// Subsection is a heading- or rule-delimited block of a page, already normalized.
type Subsection struct {
	Index int    // 0-based document order, empty blocks included
	Text  string // Plain text
}

// MatchKind says which signal located a speaker marker.
type MatchKind int

const (
	Signature     MatchKind = iota // "--Name" at end of line
	DatedSignoff                   // "Name 14:02, 3 March 2021 (UTC)"
	LastParagraph                  // short trailing line
)

func (k MatchKind) String() string {
	switch k {
	case Signature:
		return "signature"
	case DatedSignoff:
		return "dated_signoff"
	case LastParagraph:
		return "last_paragraph"
	}
	return "unknown"
}

// SignatureMatch is a located speaker marker within one subsection's text.
// Start and End are byte offsets; the span [Start, End) is not part of any utterance.
type SignatureMatch struct {
	Speaker string
	Start   int
	End     int
	Kind    MatchKind
}

// Turn is one attributed utterance, the unit handed to storage.
type Turn struct {
	PageID    string   `json:"page_id"`
	UnifiedID string   `json:"unified_id,omitempty"`
	Title     string   `json:"title"`
	Number    int      `json:"turn_num"`
	Speaker   string   `json:"user"`
	Text      string   `json:"turn"`
	Language  Language `json:"lang"`
}
