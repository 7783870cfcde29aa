// Package wikitext turns raw wiki markup into plain text and carves pages into
// heading- and rule-delimited subsections.
//
// Normalize handles the commonly occurring subset of the markup grammar:
// HTML comments and tags, templates, wikilinks, external links, tables,
// apostrophe formatting, headings, list/indent markers and character
// entities. It never fails; markup it cannot resolve is kept verbatim and
// reported as a talk.MarkupIssue.
package wikitext

import (
	"regexp"
	"strings"

	"github.com/dgallion1/talkturns/internal/talk"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Tags whose contents are not rendered as prose.
var hiddenTags = map[string]bool{
	"ref": true, "references": true, "math": true, "nowiki": true, "pre": true,
	"gallery": true, "syntaxhighlight": true, "source": true, "score": true,
	"timeline": true, "templatedata": true, "graph": true, "imagemap": true,
	"inputbox": true, "categorytree": true, "templatestyles": true, "chem": true,
	"ce": true, "hiero": true, "charinsert": true, "section": true,
	"mapframe": true, "maplink": true,
}

// Tags that are dropped while their contents are kept.
var inlineTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "small": true, "big": true,
	"span": true, "div": true, "p": true, "br": true, "hr": true, "sup": true,
	"sub": true, "code": true, "tt": true, "font": true, "center": true,
	"strike": true, "del": true, "ins": true, "em": true, "strong": true,
	"blockquote": true, "abbr": true, "cite": true, "q": true, "kbd": true,
	"var": true, "samp": true, "mark": true, "poem": true, "ul": true,
	"ol": true, "li": true, "dl": true, "dt": true, "dd": true, "table": true,
	"tr": true, "td": true, "th": true, "caption": true, "includeonly": true,
	"noinclude": true, "onlyinclude": true, "ruby": true, "rb": true,
	"rp": true, "rt": true, "bdi": true, "bdo": true, "wbr": true,
}

// Namespaces whose links render nothing in running text.
var hiddenNamespaces = map[string]bool{
	"file": true, "image": true, "category": true, "media": true,
	"archivo": true, "imagen": true, "categoría": true, "categoria": true,
	"ファイル": true, "画像": true, "カテゴリ": true,
	"文件": true, "图像": true, "分类": true, "分類": true, "檔案": true,
}

// Interlanguage prefixes. Links with one of these render nothing; any other
// prefix (WP:, MOS:, User:) is an ordinary link and keeps its text.
var interlanguage = map[string]bool{
	"af": true, "als": true, "am": true, "an": true, "ar": true, "arz": true,
	"ast": true, "az": true, "azb": true, "ba": true, "be": true, "bg": true,
	"bn": true, "br": true, "bs": true, "ca": true, "ce": true, "ceb": true,
	"ckb": true, "cs": true, "cy": true, "da": true, "de": true, "el": true,
	"en": true, "eo": true, "es": true, "et": true, "eu": true, "fa": true,
	"fi": true, "fr": true, "fy": true, "ga": true, "gl": true, "gu": true,
	"he": true, "hi": true, "hr": true, "ht": true, "hu": true, "hy": true,
	"ia": true, "id": true, "is": true, "it": true, "ja": true, "jv": true,
	"ka": true, "kk": true, "kn": true, "ko": true, "ku": true, "ky": true,
	"la": true, "lb": true, "lt": true, "lv": true, "mg": true, "min": true,
	"mk": true, "ml": true, "mn": true, "mr": true, "ms": true, "my": true,
	"nds": true, "ne": true, "nl": true, "nn": true, "no": true, "oc": true,
	"pa": true, "pl": true, "pnb": true, "pt": true, "qu": true, "ro": true,
	"ru": true, "sco": true, "sh": true, "si": true, "simple": true, "sk": true,
	"sl": true, "sq": true, "sr": true, "su": true, "sv": true, "sw": true,
	"ta": true, "te": true, "tg": true, "th": true, "tl": true, "tr": true,
	"tt": true, "uk": true, "ur": true, "uz": true, "vec": true, "vi": true,
	"war": true, "wuu": true, "yi": true, "yo": true, "yue": true, "zh": true,
	"zh-yue": true, "zh-min-nan": true, "zh-classical": true,
}

// Characters an entity may not decode to: each one is markup somewhere.
const protectedEntities = "<>&{}[]|'=:*#;-_/\n\r"

// maxPasses bounds the rewrite loop in Normalize.
const maxPasses = 16

var (
	externalLink     = regexp.MustCompile(`\[(?:https?:|ftp:|mailto:|//)[^\s\]]*(?:[ \t]+([^\]\n]*))?\]`)
	apostropheRun    = regexp.MustCompile(`''+`)
	behaviourSwitch  = regexp.MustCompile(`__[A-Z]+__`)
	headingText      = regexp.MustCompile(`^=+(.*[^=\s].*?)=+[ \t]*$`)
	listMarkers      = regexp.MustCompile(`^[:*#;]+`)
	ruleLine         = regexp.MustCompile(`^-{4,}`)
	characterEntity  = regexp.MustCompile(`&(?:[A-Za-z][A-Za-z0-9]{1,31}|#[0-9]{1,7}|#[xX][0-9A-Fa-f]{1,6});`)
	excessNewlines   = regexp.MustCompile(`\n{3,}`)
)

// Normalize renders raw markup as plain text. Line breaks survive as single
// '\n' characters; other whitespace is left as is. Normalize is idempotent.
func Normalize(raw string) (string, []talk.MarkupIssue) {
	var issues []talk.MarkupIssue
	s := normalizePass(raw, &issues)

	// Stripping one construct can expose another ("{''{x}''}"); repeat until
	// nothing changes. Issues are reported from the first pass only.
	var ignored []talk.MarkupIssue
	for range maxPasses {
		next := normalizePass(s, &ignored)
		if next == s {
			break
		}
		s = next
	}
	return s, issues
}

func normalizePass(raw string, issues *[]talk.MarkupIssue) string {
	s := prepare(raw)
	s = stripTags(s, issues)
	s = apostropheRun.ReplaceAllString(s, "")
	s = behaviourSwitch.ReplaceAllString(s, "")
	s = stripTemplates(s, issues)
	s = stripLinks(s, issues)
	s = externalLink.ReplaceAllStringFunc(s, func(m string) string {
		sub := externalLink.FindStringSubmatch(m)
		return strings.TrimSpace(sub[1])
	})
	s = stripTables(s)
	s = stripLineMarkup(s)
	s = decodeEntities(s)
	s = strings.Trim(s, "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return s
}

// Flatten joins the lines of normalized text into one line.
func Flatten(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// prepare repairs encoding and line endings so offsets are stable.
func prepare(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}

func stripTags(s string, issues *[]talk.MarkupIssue) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	lower := asciiLower(s)
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))

	offset := 0
	hidden, depth := "", 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// A tag cut off by the end of input is text, not markup.
			if hidden == "" && offset < len(s) {
				b.WriteString(s[offset:])
			}
			break
		}
		raw := z.Raw()
		start := offset
		offset += len(raw)

		var name string
		if tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken {
			n, _ := z.TagName()
			name = string(n)
		}

		if hidden != "" {
			switch {
			case tt == html.StartTagToken && name == hidden:
				depth++
			case tt == html.EndTagToken && name == hidden:
				depth--
				if depth == 0 {
					hidden = ""
				}
			}
			continue
		}

		switch tt {
		case html.CommentToken:
		case html.TextToken:
			b.Write(raw)
		case html.StartTagToken:
			switch {
			case hiddenTags[name]:
				if strings.Contains(lower[offset:], "</"+name) {
					hidden, depth = name, 1
				} else {
					*issues = append(*issues, talk.MarkupIssue{Offset: start, Kind: "unclosed_tag"})
				}
			case name == "br":
				b.WriteByte('\n')
			case inlineTags[name]:
			default:
				b.Write(raw)
			}
		case html.EndTagToken, html.SelfClosingTagToken:
			switch {
			case hiddenTags[name]:
			case name == "br":
				b.WriteByte('\n')
			case inlineTags[name]:
			default:
				b.Write(raw)
			}
		default:
			b.Write(raw)
		}
	}
	return b.String()
}

// stripTemplates drops {{templates}} and {{{parameters}}}, nested.
// An unclosed opener is kept as text and scanning resumes after it.
func stripTemplates(s string, issues *[]talk.MarkupIssue) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if !strings.HasPrefix(s[i:], "{{") {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchBraces(s, i)
		if end < 0 {
			*issues = append(*issues, talk.MarkupIssue{Offset: i, Kind: "unclosed_template"})
			b.WriteString("{{")
			i += 2
			continue
		}
		i = end
	}
	return b.String()
}

// matchBraces returns the offset just past the template opened at i, or -1.
func matchBraces(s string, i int) int {
	var stack []int
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "{{{"):
			stack = append(stack, 3)
			i += 3
		case strings.HasPrefix(s[i:], "{{"):
			stack = append(stack, 2)
			i += 2
		case strings.HasPrefix(s[i:], "}}") && len(stack) > 0:
			w := stack[len(stack)-1]
			if w == 3 && strings.HasPrefix(s[i:], "}}}") {
				i += 3
			} else {
				i += 2
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

// stripLinks renders [[target|text]] as text and [[target]] as target.
func stripLinks(s string, issues *[]talk.MarkupIssue) string {
	if !strings.Contains(s, "[[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if !strings.HasPrefix(s[i:], "[[") {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := matchBrackets(s, i)
		if end < 0 {
			*issues = append(*issues, talk.MarkupIssue{Offset: i, Kind: "unclosed_link"})
			b.WriteString("[[")
			i += 2
			continue
		}
		b.WriteString(renderLink(s[i+2:end-2], issues))
		i = end
	}
	return b.String()
}

func matchBrackets(s string, i int) int {
	depth := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "[["):
			depth++
			i += 2
		case strings.HasPrefix(s[i:], "]]"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

func renderLink(inner string, issues *[]talk.MarkupIssue) string {
	target, text, piped := strings.Cut(inner, "|")
	target = strings.TrimSpace(target)
	if rest, ok := strings.CutPrefix(target, ":"); ok {
		// Leading colon makes category and file links visible.
		target = rest
	} else if ns, _, ok := strings.Cut(target, ":"); ok {
		ns = strings.ToLower(strings.TrimSpace(ns))
		if hiddenNamespaces[ns] || interlanguage[ns] {
			return ""
		}
	}
	if piped && strings.TrimSpace(text) != "" {
		return stripLinks(text, issues)
	}
	return target
}

// stripTables removes table syntax and keeps cell contents.
func stripTables(s string) string {
	if !strings.Contains(s, "{|") {
		return s
	}
	lines := strings.Split(s, "\n")
	out := lines[:0]
	depth := 0
	for _, line := range lines {
		t := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(t, "{|"):
			depth++
			continue
		case depth > 0 && strings.HasPrefix(t, "|}"):
			depth--
			continue
		case depth == 0:
			out = append(out, line)
			continue
		case strings.HasPrefix(t, "|-"):
			continue
		case strings.HasPrefix(t, "|+"):
			out = append(out, strings.TrimSpace(t[2:]))
		case strings.HasPrefix(t, "|"), strings.HasPrefix(t, "!"):
			out = append(out, tableCells(t[1:]))
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func tableCells(row string) string {
	row = strings.ReplaceAll(row, "!!", "||")
	cells := strings.Split(row, "||")
	for i, c := range cells {
		// "style=... | content"
		if attrs, content, ok := strings.Cut(c, "|"); ok && strings.Contains(attrs, "=") {
			c = content
		}
		cells[i] = strings.TrimSpace(c)
	}
	return strings.Join(cells, " ")
}

// stripLineMarkup handles headings, rules and list markers. Each line is
// rewritten until stable so a second pass has nothing left to do.
func stripLineMarkup(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		for {
			next := line
			if m := headingText.FindStringSubmatch(next); m != nil {
				next = strings.TrimSpace(m[1])
			}
			next = ruleLine.ReplaceAllString(next, "")
			next = listMarkers.ReplaceAllString(next, "")
			if next == line {
				break
			}
			line = next
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// decodeEntities decodes character references, except those that would
// produce markup on a second pass.
func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	return characterEntity.ReplaceAllStringFunc(s, func(m string) string {
		d := html.UnescapeString(m)
		if d == m || strings.ContainsAny(d, protectedEntities) {
			return m
		}
		return d
	})
}

// asciiLower lower-cases A-Z only so byte offsets are preserved.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
