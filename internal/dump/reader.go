// Package dump streams talk pages out of the matched-pages XML produced by
// the page-matching tooling, or out of a plain MediaWiki export.
package dump

import (
	"compress/bzip2"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/talkturns/internal/talk"
)

// xmlPage is the subset of a <page> element that segmentation needs.
type xmlPage struct {
	Title     string `xml:"title"`
	ID        string `xml:"id"`
	UnifiedID string `xml:"dlatk_id"`
	Revision  struct {
		Text string `xml:"text"`
	} `xml:"revision"`
}

// Reader yields pages one at a time without loading the whole file.
type Reader struct {
	dec  *xml.Decoder
	lang talk.Language
	n    int
}

// NewReader reads pages of language lang from r.
func NewReader(r io.Reader, lang talk.Language) *Reader {
	return &Reader{dec: xml.NewDecoder(r), lang: lang}
}

// Next returns the next page, or io.EOF when the input is exhausted.
func (r *Reader) Next() (talk.Page, error) {
	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			return talk.Page{}, io.EOF
		}
		if err != nil {
			return talk.Page{}, fmt.Errorf("read page %d: %w", r.n+1, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}

		var p xmlPage
		if err := r.dec.DecodeElement(&p, &start); err != nil {
			return talk.Page{}, fmt.Errorf("decode page %d: %w", r.n+1, err)
		}
		r.n++
		return talk.Page{
			Title:     strings.TrimSpace(p.Title),
			ID:        strings.TrimSpace(p.ID),
			UnifiedID: strings.TrimSpace(p.UnifiedID),
			Language:  r.lang,
			Text:      p.Revision.Text,
		}, nil
	}
}

// Count returns how many pages have been read so far.
func (r *Reader) Count() int { return r.n }

// File is a Reader over a file on disk.
type File struct {
	*Reader
	f *os.File
}

// Open opens a pages file. Files ending in .bz2 are decompressed on the fly.
func Open(path string, lang talk.Language) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pages file: %w", err)
	}
	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}
	return &File{Reader: NewReader(r, lang), f: f}, nil
}

func (f *File) Close() error {
	return f.f.Close()
}

// ReadAll collects every remaining page.
func ReadAll(r *Reader) ([]talk.Page, error) {
	var pages []talk.Page
	for {
		p, err := r.Next()
		if err == io.EOF {
			return pages, nil
		}
		if err != nil {
			return pages, err
		}
		pages = append(pages, p)
	}
}
