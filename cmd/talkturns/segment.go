package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/dump"
	"github.com/dgallion1/talkturns/internal/pathstore"
	"github.com/dgallion1/talkturns/internal/pipeline"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/spf13/cobra"
)

type segmentOptions struct {
	lang        string
	csvPath     string
	databaseURL string
	table       string
	replace     bool
	pathstore   string
	concurrency int
	batchSize   int
}

func newSegmentCommand() *cobra.Command {
	cfg := config.Load()
	opts := segmentOptions{
		lang:        cfg.Language,
		databaseURL: cfg.DatabaseURL,
		table:       cfg.TurnsTable,
		pathstore:   cfg.PathstoreURL,
		concurrency: cfg.PageConcurrency,
		batchSize:   cfg.BatchSize,
	}
	cmd := &cobra.Command{
		Use:   "segment <pages.xml[.bz2]>",
		Short: "Segment a file of discussion pages into turns",
		Long: "Segment reads matched talk pages, attributes each utterance to its speaker\n" +
			"and writes one row per turn to CSV (default: stdout), Postgres or pathstore.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Language = opts.lang
			cfg.DatabaseURL = opts.databaseURL
			cfg.TurnsTable = opts.table
			cfg.PathstoreURL = opts.pathstore
			cfg.PageConcurrency = opts.concurrency
			cfg.BatchSize = opts.batchSize
			return runSegment(cmd.Context(), cfg, opts, args[0], cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.lang, "lang", opts.lang, "language code of the pages")
	f.StringVar(&opts.csvPath, "csv", "", "write turns to this CSV file (default stdout)")
	f.StringVar(&opts.databaseURL, "database-url", opts.databaseURL, "write turns to this Postgres database")
	f.StringVar(&opts.table, "table", opts.table, "Postgres table for turns")
	f.BoolVar(&opts.replace, "replace", false, "drop existing turns before writing")
	f.StringVar(&opts.pathstore, "pathstore-url", opts.pathstore, "write turns to this pathstore")
	f.IntVar(&opts.concurrency, "concurrency", opts.concurrency, "pages segmented in parallel")
	f.IntVar(&opts.batchSize, "batch-size", opts.batchSize, "pages per sink write")
	cmd.MarkFlagsMutuallyExclusive("csv", "database-url", "pathstore-url")
	return cmd
}

func runSegment(ctx context.Context, cfg config.Config, opts segmentOptions, path string, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := cliLogger(cfg)
	seg, err := newSegmenter(cfg, log)
	if err != nil {
		return err
	}
	lang := talk.Language(cfg.Language)
	if !seg.Library().Supports(lang) {
		return &talk.ConfigError{Language: lang}
	}

	out, reportTo, err := openSink(ctx, cfg, opts, lang, stdout)
	if err != nil {
		return err
	}

	src, err := dump.Open(path, lang)
	if err != nil {
		out.Close()
		return err
	}
	defer src.Close()

	runner := pipeline.NewRunner(seg, out, log, pipeline.RunnerConfig{
		Concurrency: cfg.PageConcurrency,
		BatchSize:   cfg.BatchSize,
	})
	report, runErr := runner.Run(ctx, lang, src)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}

	enc := json.NewEncoder(reportTo)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return runErr
}

// openSink picks the destination from the flags. The report goes to stderr
// when turns are streamed to stdout.
func openSink(ctx context.Context, cfg config.Config, opts segmentOptions, lang talk.Language, stdout io.Writer) (sink.Sink, io.Writer, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := sink.OpenPostgres(ctx, cfg.DatabaseURL, cfg.TurnsTable)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureTable(ctx, opts.replace); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, stdout, nil
	case cfg.PathstoreURL != "":
		ps := sink.NewPathstore(pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey))
		if opts.replace {
			if err := ps.Reset(ctx, lang); err != nil {
				ps.Close()
				return nil, nil, err
			}
		}
		return ps, stdout, nil
	case opts.csvPath != "" && opts.csvPath != "-":
		c, err := sink.CreateCSV(opts.csvPath)
		if err != nil {
			return nil, nil, err
		}
		return c, stdout, nil
	}
	c, err := sink.NewCSV(stdout)
	if err != nil {
		return nil, nil, err
	}
	return c, os.Stderr, nil
}
