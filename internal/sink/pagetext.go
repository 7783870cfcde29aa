package sink

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/dgallion1/talkturns/internal/wikitext"
)

// PageText exports each page as one row of plain text, the input format of
// the downstream language-analysis tooling.
type PageText struct {
	w *csv.Writer
}

func NewPageText(w io.Writer) (*PageText, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unified_id", "lang", "wiki_id", "title", "text"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &PageText{w: cw}, nil
}

// WritePage normalizes the page markup and writes it flattened to one line.
func (p *PageText) WritePage(page talk.Page) error {
	text, _ := wikitext.Normalize(page.Text)
	row := []string{page.UnifiedID, string(page.Language), page.ID, page.Title, wikitext.Flatten(text)}
	if err := p.w.Write(row); err != nil {
		return fmt.Errorf("write page %s: %w", page.ID, err)
	}
	return nil
}

func (p *PageText) Close() error {
	p.w.Flush()
	return p.w.Error()
}
