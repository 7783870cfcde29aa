package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dgallion1/talkturns/internal/talk"
)

// CSV writes turns as comma-separated rows with a header line.
type CSV struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSV writes to w. The header is written immediately.
func NewCSV(w io.Writer) (*CSV, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return &CSV{w: cw}, nil
}

// CreateCSV creates (or truncates) the file at path.
func CreateCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	c, err := NewCSV(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

func (c *CSV) WriteTurns(ctx context.Context, turns []talk.Turn) error {
	for _, t := range turns {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []string{t.Title, t.PageID, t.UnifiedID, string(t.Language), strconv.Itoa(t.Number), t.Speaker, t.Text}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
