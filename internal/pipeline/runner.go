package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/talkturns/internal/metrics"
	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/dgallion1/talkturns/internal/talk"
	"golang.org/x/sync/errgroup"
)

// PageSource yields pages until io.EOF.
type PageSource interface {
	Next() (talk.Page, error)
}

// PageFailure is one page that could not be segmented.
type PageFailure struct {
	PageID string `json:"page_id"`
	Error  string `json:"error"`
}

// Report summarizes a run. Ambiguities are counted, never raised.
type Report struct {
	Language       talk.Language `json:"lang"`
	PagesProcessed int           `json:"pages_processed"`
	PagesEmpty     int           `json:"pages_empty"`
	PagesFailed    int           `json:"pages_failed"`
	Turns          int           `json:"turns"`
	MarkupIssues   int           `json:"markup_issues"`
	Stats          segment.Stats `json:"stats"`
	Failures       []PageFailure `json:"failures,omitempty"`
}

// RunnerConfig tunes a Runner. Zero values select defaults.
type RunnerConfig struct {
	Concurrency int // pages segmented in parallel
	BatchSize   int // pages per sink write

	Metrics *metrics.Metrics
	Latency *LatencyStats
	OnBatch func(Report) // called after each batch is written
}

// Runner drives pages from a source through segmentation into a sink.
type Runner struct {
	seg *segment.Segmenter
	out sink.Sink
	log *slog.Logger
	cfg RunnerConfig
}

// NewRunner returns a Runner writing to out. Zero Concurrency and BatchSize
// become 8 and 64.
func NewRunner(seg *segment.Segmenter, out sink.Sink, log *slog.Logger, cfg RunnerConfig) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Runner{seg: seg, out: out, log: log, cfg: cfg}
}

type pageResult struct {
	page    talk.Page
	res     segment.Result
	err     error
	elapsed time.Duration
}

// Run segments every page of src as language lang. The language is checked
// before any page is read: an unsupported code returns a *talk.ConfigError
// and nothing is processed. Per-page failures are reported, not returned;
// a sink or source error ends the run.
func (r *Runner) Run(ctx context.Context, lang talk.Language, src PageSource) (Report, error) {
	report := Report{Language: lang}
	if _, err := r.seg.Library().Lookup(lang); err != nil {
		return report, err
	}

	batch := make([]talk.Page, 0, r.cfg.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch = batch[:0]
		var readErr error
		for len(batch) < r.cfg.BatchSize {
			p, err := src.Next()
			if err != nil {
				readErr = err
				break
			}
			p.Language = lang
			batch = append(batch, p)
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return report, fmt.Errorf("read pages: %w", readErr)
		}

		if len(batch) > 0 {
			if err := r.runBatch(ctx, batch, &report); err != nil {
				return report, err
			}
			if r.cfg.OnBatch != nil {
				r.cfg.OnBatch(report)
			}
		}
		if readErr != nil {
			break
		}
	}

	r.log.Info("run complete",
		"lang", lang,
		"pages", report.PagesProcessed,
		"empty", report.PagesEmpty,
		"failed", report.PagesFailed,
		"turns", report.Turns,
	)
	return report, nil
}

func (r *Runner) runBatch(ctx context.Context, batch []talk.Page, report *Report) error {
	results := make([]pageResult, len(batch))

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, p := range batch {
		g.Go(func() error {
			start := time.Now()
			res, err := r.seg.SegmentPage(p)
			results[i] = pageResult{page: p, res: res, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	g.Wait()

	var turns []talk.Turn
	for _, pr := range results {
		report.PagesProcessed++
		outcome := metrics.OutcomeOK
		switch {
		case pr.err != nil:
			outcome = metrics.OutcomeFailed
			report.PagesFailed++
			report.Failures = append(report.Failures, PageFailure{PageID: pr.page.ID, Error: pr.err.Error()})
			r.log.Error("page failed", "page_id", pr.page.ID, "title", pr.page.Title, "error", pr.err)
		case len(pr.res.Turns) == 0:
			outcome = metrics.OutcomeEmpty
			report.PagesEmpty++
		}
		report.Turns += len(pr.res.Turns)
		report.MarkupIssues += len(pr.res.Issues)
		report.Stats.Add(pr.res.Stats)
		turns = append(turns, pr.res.Turns...)

		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ObservePage(string(pr.page.Language), outcome, len(pr.res.Turns), pr.res.Stats, pr.elapsed)
		}
		if r.cfg.Latency != nil {
			r.cfg.Latency.Record(pr.elapsed)
		}
	}

	if len(turns) == 0 {
		return nil
	}
	err := withRetry(ctx, r.log, "write turns", func() error {
		return r.out.WriteTurns(ctx, turns)
	})
	if err != nil {
		return fmt.Errorf("write turns: %w", err)
	}
	return nil
}
