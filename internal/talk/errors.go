package talk

import (
	"errors"
	"fmt"
)

// ErrUnknownLanguage is matched by every *ConfigError raised for a language code.
var ErrUnknownLanguage = errors.New("unknown language")

// ConfigError is fatal: segmentation cannot proceed without a pattern set.
type ConfigError struct {
	Language Language
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration error for language %q: %s", e.Language, e.Reason)
	}
	return fmt.Sprintf("configuration error: unknown language %q", e.Language)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrUnknownLanguage && e.Reason == ""
}

// PageError isolates an unexpected failure to a single page.
type PageError struct {
	PageID string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %s: %v", e.PageID, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// MarkupIssue records markup the normalizer could not fully resolve.
// The text is still extracted on a best-effort basis.
type MarkupIssue struct {
	Offset int    // Byte offset into the raw input
	Kind   string // e.g. "unclosed_template"
}

func (i MarkupIssue) String() string {
	return fmt.Sprintf("%s at %d", i.Kind, i.Offset)
}
