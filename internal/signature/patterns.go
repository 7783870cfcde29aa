// Package signature locates speaker markers in normalized talk-page text.
package signature

import (
	"fmt"
	"regexp"

	"github.com/dgallion1/talkturns/internal/talk"
)

// SignaturePattern matches "--Name" or "—Name" running to the end of the line
// or to the first masked byte (Sentinel), whichever comes first.
const SignaturePattern = `(?:--|—)(?P<name>[^\s\x1a][^\x1a\n]*)`

// Timestamp grammars of the built-in languages.
const (
	englishStamp = `\d{1,2}:\d{1,2},? ?\d{1,2} ? [A-Za-z]+ \d{4} \([A-Z]{3,4}\)`
	spanishStamp = `\d{2}:\d{2} \d{1,2} [a-z]{3},? \d{4} \([A-Z]{3,4}\)`
	cjkStamp     = `\d{4} ?年 ?\d{1,2} ?月 ?\d{1,2} ?日 ?(?:[^0-9./:;,?!\n]+)?\d{1,2}:\d{1,2} ?[(（][^0-9()*+,\-./:;?!。\n]{3,4}[)）]`
)

const ipv4 = `\d{1,3}(?:\.\d{1,3}){3}`

// grammar describes one dated sign-off family.
type grammar struct {
	stops     string // sentence punctuation that may precede a sign-off
	ipPrefix  string // optional literal before an IP speaker
	separator string // between the speaker and the timestamp
	stamp     string
}

func (g grammar) pattern() string {
	prefix := ""
	if g.ipPrefix != "" {
		prefix = "(?:" + regexp.QuoteMeta(g.ipPrefix) + ")?"
	}
	return fmt.Sprintf(
		`(?m)(?P<anchor>^|[%[1]s]|(?P<dash>--|—))[ \t]*(?:%[2]s(?P<ip>%[3]s)|(?P<name>[^%[1]s\n]{1,60}?))(?: \([^)\n]+\))?%[4]s%[5]s`,
		g.stops, prefix, ipv4, g.separator, g.stamp)
}

var (
	englishGrammar = grammar{stops: `.?!`, ipPrefix: "Preceding unsigned comment added by ", separator: " ", stamp: englishStamp}
	spanishGrammar = grammar{stops: `.?!`, separator: " ", stamp: spanishStamp}
	cjkGrammar     = grammar{stops: `.?!。？！`, separator: " ?", stamp: cjkStamp}
)

// Patterns is the compiled pattern set for one language.
type Patterns struct {
	Language      talk.Language
	Signature     *regexp.Regexp
	Dated         *regexp.Regexp
	LastParagraph bool // short-trailing-line fallback enabled
}

// compilePatterns builds and checks a pattern set. An empty signature
// expression selects SignaturePattern.
func compilePatterns(lang talk.Language, dated, sig string, lastParagraph bool) (Patterns, error) {
	if sig == "" {
		sig = SignaturePattern
	}
	p := Patterns{Language: lang, LastParagraph: lastParagraph}

	var err error
	if p.Signature, err = regexp.Compile(sig); err != nil {
		return Patterns{}, &talk.ConfigError{Language: lang, Reason: fmt.Sprintf("signature pattern: %v", err)}
	}
	if p.Signature.SubexpIndex("name") < 0 {
		return Patterns{}, &talk.ConfigError{Language: lang, Reason: "signature pattern has no name group"}
	}
	if dated == "" {
		return p, nil
	}
	if p.Dated, err = regexp.Compile(dated); err != nil {
		return Patterns{}, &talk.ConfigError{Language: lang, Reason: fmt.Sprintf("dated pattern: %v", err)}
	}
	if p.Dated.SubexpIndex("name") < 0 {
		return Patterns{}, &talk.ConfigError{Language: lang, Reason: "dated pattern has no name group"}
	}
	return p, nil
}

func mustPatterns(lang talk.Language, g grammar, lastParagraph bool) Patterns {
	p, err := compilePatterns(lang, g.pattern(), "", lastParagraph)
	if err != nil {
		panic(err)
	}
	return p
}
