// Package sink stores segmented turns.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/talkturns/internal/talk"
)

// Sink receives turns in page order. A CSV sink must be driven from one
// goroutine; Postgres and Pathstore may be shared.
type Sink interface {
	WriteTurns(ctx context.Context, turns []talk.Turn) error
	Close() error
}

// KeepOpen wraps a shared sink so that closing the wrapper leaves it open.
func KeepOpen(s Sink) Sink { return keepOpen{s} }

type keepOpen struct{ Sink }

func (keepOpen) Close() error { return nil }

// RetryableError marks a write that may succeed if repeated.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Columns is the column order shared by the tabular sinks.
var Columns = []string{"title", "message_wiki_id", "unified_id", "lang", "turn_num", "user", "turn"}
