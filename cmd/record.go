package cmd

import (
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a session (same as running mearec without a subcommand)",
	Long: `Record a bounded window of live MEA data into an HDF5 file.

The session stops after --duration chunks, when the stream ends, or on
Ctrl+C. Chunks already written stay in the file in every case.

Exit status: 0 completed, 1 failed, 2 invalid arguments, 130 cancelled.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	addRecordFlags(recordCmd)
}
