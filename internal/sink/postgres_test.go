package sink

import (
	"context"
	"regexp"
	"testing"

	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

func sampleTurns() []talk.Turn {
	return []talk.Turn{
		{PageID: "1", Title: "Talk:A", Number: 1, Speaker: "Alice", Text: "I think this is wrong. ", Language: "en"},
		{PageID: "1", Title: "Talk:A", Number: 2, Speaker: "Bob", Text: "Agreed. ", Language: "en"},
		{PageID: "2", UnifiedID: "u2", Title: "Talk:B", Number: 1, Speaker: "X", Text: "Point one. ", Language: "en"},
	}
}

func TestPostgres_EnsureTableUnboundedSpeaker(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	// SpeakerMaxRunes may exceed any fixed VARCHAR width.
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "talk"\."turns_en"(?s:.*)"user"\s+TEXT NOT NULL`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	p, err := NewPostgres(mock, "talk.turns_en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.EnsureTable(context.Background(), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_EnsureTableReplace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "talk"."turns_en"`)).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "talk"."turns_en"`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	p, err := NewPostgres(mock, "talk.turns_en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.EnsureTable(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_WriteTurns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"turns"}, Columns).WillReturnResult(3)

	p, _ := NewPostgres(mock, "turns")
	if err := p.WriteTurns(context.Background(), sampleTurns()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.WriteTurns(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgres_RetryableErrors(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{"40001", true},
		{"40P01", true},
		{"08006", true},
		{"23505", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatal(err)
			}
			defer mock.Close()
			mock.ExpectCopyFrom(pgx.Identifier{"turns"}, Columns).
				WillReturnError(&pgconn.PgError{Code: tt.code, Message: "boom"})

			p, _ := NewPostgres(mock, "turns")
			err = p.WriteTurns(context.Background(), sampleTurns())
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("expected retryable=%v for %s, got %v", tt.retryable, tt.code, err)
			}
		})
	}
}

func TestNewPostgres_InvalidTable(t *testing.T) {
	for _, name := range []string{"", "1turns", "turns; DROP TABLE x", "a.b.c"} {
		if _, err := NewPostgres(nil, name); err == nil {
			t.Errorf("expected error for table %q", name)
		}
	}
}
