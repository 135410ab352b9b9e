package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	debug   bool
	unitArg uint64
)

var rootCmd = &cobra.Command{
	Use:   "volctl",
	Short: "Inspect cluster bitmaps and run lists",
	Long: `volctl is a tool for inspecting the space-accounting structures of a
volume: the cluster bitmap (free/used map with windowed summaries and the
reserved metadata zone) and packed run buffers (logical-to-physical extent
maps). It operates on raw bitmap streams and run buffers extracted from a
volume; it does not mount anything.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")
	cobra.OnInitialize(func() {
		handler := slog.NewTextHandler(io.Discard, nil)
		if debug {
			handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		}
		slog.SetDefault(slog.New(handler))
	})
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
