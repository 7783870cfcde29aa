package dump

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const matchedPages = `<?xml version="1.0" encoding="utf-8"?>
<pages>
  <page>
    <title>Talk:Algeria</title>
    <id>1234</id>
    <dlatk_id>77</dlatk_id>
    <revision>
      <id>999</id>
      <text xml:space="preserve">I think this is wrong. --Alice</text>
    </revision>
  </page>
  <page>
    <title>Talk:Empty</title>
    <id>5</id>
    <revision></revision>
  </page>
</pages>`

func TestReader_Pages(t *testing.T) {
	r := NewReader(strings.NewReader(matchedPages), "en")

	p, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Title != "Talk:Algeria" || p.ID != "1234" || p.UnifiedID != "77" {
		t.Errorf("unexpected page fields: %+v", p)
	}
	if p.Text != "I think this is wrong. --Alice" {
		t.Errorf("unexpected text %q", p.Text)
	}
	if p.Language != "en" {
		t.Errorf("expected language en, got %q", p.Language)
	}

	p, err = r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "5" || p.Text != "" {
		t.Errorf("expected empty page 5, got %+v", p)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if r.Count() != 2 {
		t.Errorf("expected count 2, got %d", r.Count())
	}
}

func TestReader_MalformedXML(t *testing.T) {
	r := NewReader(strings.NewReader("<pages><page><title>x</title><id>1"), "en")
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestOpen_PlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.xml")
	if err := os.WriteFile(path, []byte(matchedPages), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path, "es")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	pages, err := ReadAll(f.Reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 || pages[0].Language != "es" {
		t.Errorf("unexpected pages %+v", pages)
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.xml"), "en"); err == nil {
		t.Error("expected error for missing file")
	}
}
