package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCSV_WriteTurns(t *testing.T) {
	var buf bytes.Buffer
	c, err := NewCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteTurns(context.Background(), sampleTurns()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(records))
	}
	if !slices.Equal(records[0], Columns) {
		t.Errorf("unexpected header %v", records[0])
	}
	want := []string{"Talk:B", "2", "u2", "en", "1", "X", "Point one. "}
	if !slices.Equal(records[3], want) {
		t.Errorf("expected %v, got %v", want, records[3])
	}
}

func TestCSV_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	c, _ := NewCSV(&buf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.WriteTurns(ctx, sampleTurns()); err == nil {
		t.Error("expected context error")
	}
}

func TestCreateCSV_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.csv")
	c, err := CreateCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteTurns(context.Background(), sampleTurns()[:1]); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("Alice")) {
		t.Errorf("expected Alice in output, got %q", data)
	}
}
