package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skycoin/datalink/cmd/datalink-cli/internal"
	"github.com/skycoin/datalink/pkg/blockcode"
	"github.com/skycoin/datalink/pkg/loss"
)

func init() {
	rootCmd.AddCommand(fecCmd)
}

var (
	ber     float64
	fecSeed int64
	verbose bool
)

func init() {
	fecCmd.Flags().Float64Var(&ber, "ber", 0, "probability of flipping each codeword bit")
	fecCmd.Flags().Int64Var(&fecSeed, "seed", 0, "noise seed; 0 seeds from the clock")
	fecCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every codeword")
}

var fecCmd = &cobra.Command{
	Use:   "fec <text>",
	Short: "Encodes text with the (6,3) block code, adds bit errors and decodes it again",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		code := blockcode.MustNewCode(blockcode.Hamming63)
		msg := []byte(args[0])

		codewords, err := code.EncodeMessage(msg)
		internal.Catch(err)

		sim := loss.NewRandom()
		if fecSeed != 0 {
			sim = loss.New(fecSeed)
		}
		flippedBits := 0
		for i, cw := range codewords {
			noisy, flipped := sim.FlipBits(blockcode.Word(cw), code.N(), ber)
			codewords[i] = byte(noisy)
			flippedBits += len(flipped)
		}

		report, err := code.DecodeMessage(codewords, len(msg))
		internal.Catch(err)

		if verbose {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
			_, err = fmt.Fprintln(w, "index\treceived\tsymbol\toutcome\tposition")
			internal.Catch(err, "write:")
			for _, s := range report.Symbols {
				_, err = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", s.Index,
					blockcode.Word(s.Received).Format(code.N()), s.Symbol.Format(code.K()), s.Outcome, s.Position)
				internal.Catch(err, "write:")
			}
			internal.Catch(w.Flush(), "flush:")
		}

		fmt.Printf("codewords:     %d\n", len(codewords))
		fmt.Printf("flipped bits:  %d\n", flippedBits)
		fmt.Printf("corrected:     %d\n", report.Corrected)
		fmt.Printf("uncorrectable: %d %v\n", report.Uncorrectable, report.Lost())
		fmt.Printf("decoded:       %q\n", report.Message)
	},
}
