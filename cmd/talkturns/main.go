package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgallion1/talkturns/internal/config"
	"github.com/dgallion1/talkturns/internal/segment"
	"github.com/dgallion1/talkturns/internal/signature"
	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var cfgErr *talk.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "talkturns:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "talkturns:", err)
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "talkturns",
		Short:         "Split wiki discussion pages into attributed conversational turns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSegmentCommand())
	cmd.AddCommand(newPageTextCommand())
	cmd.AddCommand(newLanguagesCommand())
	return cmd
}

// cliLogger writes human-readable logs to stderr so stdout stays free for output.
func cliLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func loadLibrary(cfg config.Config) (*signature.Library, error) {
	if cfg.PatternsFile == "" {
		return signature.DefaultLibrary(), nil
	}
	return signature.LoadLibrary(cfg.PatternsFile)
}

func newSegmenter(cfg config.Config, log *slog.Logger) (*segment.Segmenter, error) {
	lib, err := loadLibrary(cfg)
	if err != nil {
		return nil, err
	}
	return segment.New(lib, segment.WithLogger(log), segment.WithSpeakerLimit(cfg.SpeakerMaxRunes)), nil
}

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported language codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			for _, lang := range lib.Languages() {
				fmt.Fprintln(cmd.OutOrStdout(), lang)
			}
			return nil
		},
	}
}
