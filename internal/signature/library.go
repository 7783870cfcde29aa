package signature

import (
	"fmt"
	"os"
	"slices"

	"github.com/dgallion1/talkturns/internal/talk"
	"gopkg.in/yaml.v3"
)

// Library maps each supported language to its patterns. It is read-only
// once built and safe for concurrent use.
type Library struct {
	patterns map[talk.Language]Patterns
}

// DefaultLibrary returns the built-in languages: en, es, ja and zh.
// The last-paragraph fallback is enabled for en and es only.
func DefaultLibrary() *Library {
	return &Library{patterns: map[talk.Language]Patterns{
		talk.English:  mustPatterns(talk.English, englishGrammar, true),
		talk.Spanish:  mustPatterns(talk.Spanish, spanishGrammar, true),
		talk.Japanese: mustPatterns(talk.Japanese, cjkGrammar, false),
		talk.Chinese:  mustPatterns(talk.Chinese, cjkGrammar, false),
	}}
}

// Lookup returns the patterns for lang or a *talk.ConfigError.
func (l *Library) Lookup(lang talk.Language) (Patterns, error) {
	p, ok := l.patterns[lang]
	if !ok {
		return Patterns{}, &talk.ConfigError{Language: lang}
	}
	return p, nil
}

// Supports reports whether lang has a pattern set.
func (l *Library) Supports(lang talk.Language) bool {
	_, ok := l.patterns[lang]
	return ok
}

// Languages lists the supported codes in sorted order.
func (l *Library) Languages() []talk.Language {
	langs := make([]talk.Language, 0, len(l.patterns))
	for lang := range l.patterns {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// LanguageSpec is one language entry of a pattern file.
type LanguageSpec struct {
	Dated         string `yaml:"dated"`
	Signature     string `yaml:"signature"`
	LastParagraph bool   `yaml:"last_paragraph"`
}

type libraryFile struct {
	Languages map[string]LanguageSpec `yaml:"languages"`
}

// LoadLibrary reads a YAML pattern file and layers its languages over the
// built-in ones. An entry for a built-in code replaces it.
//
//	languages:
//	  fr:
//	    dated: '(?m)(?P<anchor>^|[.?!]|(?P<dash>--|—))[ \t]*(?P<name>[^.?!\n]{1,60}?) \d{1,2} \w+ \d{4} à \d{2}:\d{2} \([A-Z]{3,4}\)'
//	    last_paragraph: true
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return ParseLibrary(data)
}

// ParseLibrary is LoadLibrary on in-memory YAML.
func ParseLibrary(data []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	lib := DefaultLibrary()
	for code, spec := range f.Languages {
		lang := talk.Language(code)
		if code == "" {
			return nil, &talk.ConfigError{Language: lang, Reason: "empty language code"}
		}
		if spec.Dated == "" && spec.Signature == "" && !spec.LastParagraph {
			return nil, &talk.ConfigError{Language: lang, Reason: "no patterns defined"}
		}
		p, err := compilePatterns(lang, spec.Dated, spec.Signature, spec.LastParagraph)
		if err != nil {
			return nil, err
		}
		lib.patterns[lang] = p
	}
	return lib, nil
}
