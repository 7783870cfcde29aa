package sink

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the minimal database interface Postgres depends on (pgxpool or pgxmock).
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Postgres bulk-loads turns into one table with COPY.
type Postgres struct {
	db    DB
	table pgx.Identifier
	pool  *pgxpool.Pool
}

// NewPostgres writes to table ("name" or "schema.name") through db.
func NewPostgres(db DB, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{db: db, table: pgx.Identifier(strings.Split(table, "."))}, nil
}

// OpenPostgres connects a pool to databaseURL. Close releases it.
func OpenPostgres(ctx context.Context, databaseURL, table string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p, err := NewPostgres(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// EnsureTable creates the turns table. With replace set an existing table is
// dropped first.
func (p *Postgres) EnsureTable(ctx context.Context, replace bool) error {
	name := p.table.Sanitize()
	if replace {
		if _, err := p.db.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop table: %w", classify(err))
		}
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + name + ` (
	title           TEXT NOT NULL,
	message_wiki_id TEXT NOT NULL,
	unified_id      TEXT,
	lang            VARCHAR(16) NOT NULL,
	turn_num        INTEGER NOT NULL,
	"user"          TEXT NOT NULL,
	turn            TEXT NOT NULL,
	PRIMARY KEY (lang, message_wiki_id, turn_num)
)`
	if _, err := p.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", classify(err))
	}
	return nil
}

func (p *Postgres) WriteTurns(ctx context.Context, turns []talk.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	rows := make([][]any, len(turns))
	for i, t := range turns {
		var unified any
		if t.UnifiedID != "" {
			unified = t.UnifiedID
		}
		rows[i] = []any{t.Title, t.PageID, unified, string(t.Language), int32(t.Number), t.Speaker, t.Text}
	}
	n, err := p.db.CopyFrom(ctx, p.table, Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy turns: %w", classify(err))
	}
	if n != int64(len(turns)) {
		return fmt.Errorf("copy turns: wrote %d of %d rows", n, len(turns))
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// classify wraps errors a retry can fix: connection loss before the
// statement was sent, serialization failures and deadlocks.
func classify(err error) error {
	if pgconn.SafeToRetry(err) {
		return &RetryableError{Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "40001", pgErr.Code == "40P01":
			return &RetryableError{Err: err}
		}
	}
	return err
}
