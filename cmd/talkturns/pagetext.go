package main

import (
	"errors"
	"io"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/dump"
	"github.com/dgallion1/talkturns/internal/sink"
	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/spf13/cobra"
)

func newPageTextCommand() *cobra.Command {
	cfg := config.Load()
	lang := cfg.Language
	cmd := &cobra.Command{
		Use:   "pagetext <pages.xml[.bz2]>",
		Short: "Export each page as one row of normalized plain text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Language = lang
			return runPageText(cfg, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&lang, "lang", lang, "language code of the pages")
	return cmd
}

func runPageText(cfg config.Config, path string, stdout io.Writer) error {
	lib, err := loadLibrary(cfg)
	if err != nil {
		return err
	}
	l := talk.Language(cfg.Language)
	if !lib.Supports(l) {
		return &talk.ConfigError{Language: l}
	}

	src, err := dump.Open(path, l)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := sink.NewPageText(stdout)
	if err != nil {
		return err
	}
	for {
		page, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Close()
			return err
		}
		if err := out.WritePage(page); err != nil {
			return err
		}
	}
	cliLogger(cfg).Info("pages exported", "pages", src.Count(), "lang", l)
	return out.Close()
}
