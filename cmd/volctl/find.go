package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/volkit/volkit/bitmap"
)

var (
	findNeed       uint64
	findHint       uint64
	findFull       bool
	findWindowBits uint64
)

var findCmd = &cobra.Command{
	Use:   "find <bitmap-file>",
	Short: "Simulate a free-space search against a bitmap stream",
	Long: `find runs the allocator's search against the bitmap in <file> without
marking anything used, and reports what a real allocation would return.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, cleanup, err := loadBitmap(args[0], unitArg, findWindowBits)
		if err != nil {
			return err
		}
		defer cleanup()

		var flags bitmap.FindFlag
		if findFull {
			flags |= bitmap.FindFull
		}
		start, got, err := b.Find(findNeed, findHint, flags)
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		p.Printf("start:  %d\n", start)
		p.Printf("length: %d\n", got)
		if got < findNeed {
			p.Printf("note: best partial run; %d units short\n", findNeed-got)
		}
		return nil
	},
}

func init() {
	findCmd.Flags().Uint64Var(&unitArg, "units", 0, "Total allocation units tracked by the bitmap (required)")
	findCmd.Flags().Uint64Var(&findWindowBits, "window-bits", 0, "Bits per window (default 32768)")
	findCmd.Flags().Uint64Var(&findNeed, "need", 1, "Units to search for")
	findCmd.Flags().Uint64Var(&findHint, "hint", 0, "Preferred starting unit")
	findCmd.Flags().BoolVar(&findFull, "full", false, "Fail instead of returning a shorter run")
	_ = findCmd.MarkFlagRequired("units")
	rootCmd.AddCommand(findCmd)
}
