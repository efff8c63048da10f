package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	configpkg "github.com/drblury/asyncflow/internal/runtime/config"
	"github.com/drblury/asyncflow/internal/runtime/document"
	"github.com/drblury/asyncflow/internal/runtime/logging"

	_ "github.com/drblury/asyncflow/transport/transports"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	documentPath string
	configPath   string
	verbose      bool
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "asyncflowctl",
		Short: "Inspect AsyncAPI documents with the asyncflow resolver",
		Long: `asyncflowctl resolves AsyncAPI operations exactly like the asyncflow client
does, without connecting to any broker.

Commands:
  asyncflowctl resolve placeOrder --payload '{"id":"o-1"}'   # Show the operation context
  asyncflowctl validate                                     # Check every operation`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.documentPath, "document", "d", "asyncapi.yaml", "AsyncAPI document path")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "asyncflow config file path")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolution details to stderr")

	rootCmd.AddCommand(newResolveCmd(opts))
	rootCmd.AddCommand(newValidateCmd(opts))
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *globalOptions) load() (*document.Document, *configpkg.Config, error) {
	doc, err := document.LoadFile(o.documentPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load document: %w", err)
	}
	conf := &configpkg.Config{}
	if o.configPath != "" {
		if conf, err = configpkg.LoadFile(o.configPath); err != nil {
			return nil, nil, err
		}
	}
	return doc, conf, nil
}

func (o *globalOptions) logger(w io.Writer) logging.ServiceLogger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return logging.NewSlogServiceLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
