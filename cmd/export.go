package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/livemea/mearec/internal/export"
	"github.com/livemea/mearec/internal/service"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file.h5] [out.edf]",
	Short: "Convert a recording to EDF",
	Long: `Convert a recording into an EDF file with one signal per electrode.
Each chunk becomes 8 data records of 512 samples. When no output is given,
the recording's name with an .edf extension is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		out := strings.TrimSuffix(in, filepath.Ext(in)) + ".edf"
		if len(args) == 2 {
			out = args[1]
		}

		opts := export.EDFOptions{}
		opts.PatientID, _ = cmd.Flags().GetString("patient")
		opts.RecordingID, _ = cmd.Flags().GetString("recording")
		opts.Dimension, _ = cmd.Flags().GetString("unit")
		if opts.RecordingID == "" {
			opts.RecordingID = filepath.Base(in)
		}
		if info, err := os.Stat(in); err == nil {
			opts.StartTime = info.ModTime()
		}

		svc := service.New(cfg, cfgFile, nil)
		sum, err := svc.Export(cmd.Context(), in, out, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Exported %d chunks (%d records, %d signals) to %s\n", sum.Chunks, sum.Records, sum.Signals, out)
		fmt.Printf("Physical range: %.0f to %.0f %s\n", sum.PhysicalMin, sum.PhysicalMax, unitOrDefault(opts.Dimension))
		return nil
	},
}

func unitOrDefault(u string) string {
	if u == "" {
		return "uV"
	}
	return u
}

func init() {
	exportCmd.Flags().String("patient", "", "EDF patient identification")
	exportCmd.Flags().String("recording", "", "EDF recording identification (default is the file name)")
	exportCmd.Flags().String("unit", "uV", "physical unit of the samples")
	rootCmd.AddCommand(exportCmd)
}
