package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/volkit/volkit/bitmap"
	"github.com/volkit/volkit/blockdev"
)

var infoWindowBits uint64

var infoCmd = &cobra.Command{
	Use:   "info <bitmap-file>",
	Short: "Show free-space accounting for a bitmap stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, cleanup, err := loadBitmap(args[0], unitArg, infoWindowBits)
		if err != nil {
			return err
		}
		defer cleanup()

		p := message.NewPrinter(language.English)
		total := b.Units()
		free := b.TotalFree()
		p.Printf("units:     %d\n", total)
		p.Printf("free:      %d (%.1f%%)\n", free, 100*float64(free)/float64(total))
		p.Printf("used:      %d\n", total-free)
		p.Printf("windows:   %d\n", b.Windows())
		return nil
	},
}

func init() {
	infoCmd.Flags().Uint64Var(&unitArg, "units", 0, "Total allocation units tracked by the bitmap (required)")
	infoCmd.Flags().Uint64Var(&infoWindowBits, "window-bits", 0, "Bits per window (default 32768)")
	_ = infoCmd.MarkFlagRequired("units")
	rootCmd.AddCommand(infoCmd)
}

// loadBitmap opens path as a bitmap stream of units bits.
func loadBitmap(path string, units, windowBits uint64) (*bitmap.Bitmap, func(), error) {
	if units == 0 {
		return nil, nil, fmt.Errorf("--units must be > 0")
	}
	dev, err := blockdev.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	var opt *bitmap.Options
	if windowBits != 0 {
		opt = &bitmap.Options{WindowBits: windowBits}
	}
	b := bitmap.New(bitmap.LockData, opt)
	if err := b.Init(dev, units); err != nil {
		dev.Close()
		return nil, nil, err
	}
	return b, func() { dev.Close() }, nil
}
