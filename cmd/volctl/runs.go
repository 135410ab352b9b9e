package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/volkit/volkit/run"
)

var (
	runsSVCN uint64
	runsEVCN uint64
)

var runsCmd = &cobra.Command{
	Use:   "runs <file>",
	Short: "Decode a packed run buffer",
	Long: `runs decodes the packed extent records in <file> and prints one line per
mapped entry. Gaps between entries are sparse ranges with no physical
backing. The buffer is read leniently; over-wide fields are accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		buf, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		var r run.Runs
		if err := r.Unpack(buf, runsSVCN, runsEVCN); err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		p.Printf("entries: %d\n", r.Len())
		next := runsSVCN
		for i := 0; i < r.Len(); i++ {
			e, _ := r.Entry(i)
			if e.VCN > next {
				p.Printf("  vcn %d..%d  sparse (%d units)\n", next, e.VCN-1, e.VCN-next)
			}
			p.Printf("  vcn %d..%d  lcn %d..%d  (%d units)\n",
				e.VCN, e.End()-1, e.LCN, e.LCN+e.Len-1, e.Len)
			next = e.End()
		}
		if next <= runsEVCN {
			p.Printf("  vcn %d..%d  sparse (%d units)\n", next, runsEVCN, runsEVCN-next+1)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Uint64Var(&runsSVCN, "svcn", 0, "First logical unit covered by the buffer")
	runsCmd.Flags().Uint64Var(&runsEVCN, "evcn", 0, "Last logical unit covered by the buffer (required)")
	_ = runsCmd.MarkFlagRequired("evcn")
	rootCmd.AddCommand(runsCmd)
}
