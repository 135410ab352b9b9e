package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyWindowBits uint64

var verifyCmd = &cobra.Command{
	Use:   "verify <bitmap-file>",
	Short: "Walk the bitmap accounting invariants",
	Long: `verify recomputes every window's free count and the running total from
the raw bit stream, rebuilds the free-extent cache, and cross-checks the
two against each other. Any mismatch indicates corruption.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, cleanup, err := loadBitmap(args[0], unitArg, verifyWindowBits)
		if err != nil {
			return err
		}
		defer cleanup()

		b.RebuildCache()
		if err := b.Verify(); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	verifyCmd.Flags().Uint64Var(&unitArg, "units", 0, "Total allocation units tracked by the bitmap (required)")
	verifyCmd.Flags().Uint64Var(&verifyWindowBits, "window-bits", 0, "Bits per window (default 32768)")
	_ = verifyCmd.MarkFlagRequired("units")
	rootCmd.AddCommand(verifyCmd)
}
