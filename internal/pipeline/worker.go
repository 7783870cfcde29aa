package pipeline

import (
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/talkturns/internal/dump"
	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/dgallion1/talkturns/internal/talk"
)

// SinkFactory opens the destination for one job's turns and describes it.
type SinkFactory func(ctx context.Context, job *Job) (sink.Sink, string, error)

// CSVFiles writes each job to <dir>/<job id>.csv.
func CSVFiles(dir string) SinkFactory {
	return func(_ context.Context, job *Job) (sink.Sink, string, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("create output dir: %w", err)
		}
		path := filepath.Join(dir, job.ID+".csv")
		out, err := sink.CreateCSV(path)
		if err != nil {
			return nil, "", err
		}
		return out, path, nil
	}
}

// Shared hands every job the same long-lived sink. Closing is left to the owner.
func Shared(s sink.Sink, dest string) SinkFactory {
	return func(context.Context, *Job) (sink.Sink, string, error) {
		return sink.KeepOpen(s), dest, nil
	}
}

// Worker processes a single uploaded dump.
type Worker struct {
	seg     *segment.Segmenter
	newSink SinkFactory
	log     *slog.Logger
	cfg     RunnerConfig
}

// NewWorker returns a Worker that opens one sink per job through newSink.
func NewWorker(seg *segment.Segmenter, newSink SinkFactory, log *slog.Logger, cfg RunnerConfig) *Worker {
	return &Worker{seg: seg, newSink: newSink, log: log, cfg: cfg}
}

// Process reads the job's pages, segments them and writes the turns.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "lang", job.Language, "filename", job.Filename)
	status := w.process(ctx, job, log)
	job.SetFileData(nil)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ObserveJob(string(status))
	}
}

func (w *Worker) process(ctx context.Context, job *Job, log *slog.Logger) JobStatus {
	fail := func(phase string, err error) JobStatus {
		log.Error("job failed", "phase", phase, "error", err)
		job.AddError(fmt.Sprintf("%s: %s", phase, err))
		job.SetStatus(StatusFailed, phase)
		return StatusFailed
	}

	// Phase 1: open the upload and the destination.
	job.SetStatus(StatusReading, "reading")
	if !w.seg.Library().Supports(job.Language) {
		return fail("reading", &talk.ConfigError{Language: job.Language})
	}
	var in io.Reader = bytes.NewReader(job.FileData())
	if strings.HasSuffix(job.Filename, ".bz2") {
		in = bzip2.NewReader(in)
	}
	src := dump.NewReader(in, job.Language)

	out, dest, err := w.newSink(ctx, job)
	if err != nil {
		return fail("reading", fmt.Errorf("open sink: %w", err))
	}
	job.SetOutput(dest)

	// Phase 2: segment.
	job.SetStatus(StatusSegmenting, "segmenting")
	cfg := w.cfg
	cfg.OnBatch = job.UpdateProgress
	report, runErr := NewRunner(w.seg, out, log, cfg).Run(ctx, job.Language, src)
	job.UpdateProgress(report)
	for _, f := range report.Failures {
		job.AddError(fmt.Sprintf("page %s: %s", f.PageID, f.Error))
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close sink: %w", err)
	}

	var cfgErr *talk.ConfigError
	switch {
	case errors.As(runErr, &cfgErr):
		return fail("reading", runErr)
	case runErr != nil && report.Turns > 0:
		log.Error("run stopped early", "error", runErr)
		job.AddError(runErr.Error())
		job.SetStatus(StatusPartial, "done")
		return StatusPartial
	case runErr != nil:
		return fail("segmenting", runErr)
	case report.PagesFailed > 0:
		job.SetStatus(StatusPartial, "done")
		return StatusPartial
	}
	log.Info("job complete", "pages", report.PagesProcessed, "turns", report.Turns, "output", dest)
	job.SetStatus(StatusCompleted, "done")
	return StatusCompleted
}
