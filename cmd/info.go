package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/recording"
	"github.com/livemea/mearec/internal/service"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [file.h5]",
	Short: "Show the layout of a recording",
	Long:  `Display the chunk groups of a recording with their electrode count and sample range, and check the file against the recording layout: contiguous chunk indices, 32 electrodes of 4096 samples per chunk.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, cfgFile, nil)
		ins, err := svc.Inspect(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("=== FILE ===\n")
		fmt.Printf("path: %s\n", ins.Path)
		fmt.Printf("size: %s\n", ins.SizeHuman)
		fmt.Printf("chunks: %d\n", len(ins.Chunks))

		fmt.Printf("\n=== CHUNKS ===\n")
		for _, c := range ins.Chunks {
			if c.Err != "" {
				fmt.Printf("%s: %d/%d electrodes, unreadable: %s\n", recording.GroupName(c.Index), c.Electrodes, mea.Electrodes, c.Err)
				continue
			}
			fmt.Printf("%s: %d/%d electrodes, min=%.3f max=%.3f\n", recording.GroupName(c.Index), c.Electrodes, mea.Electrodes, c.Min, c.Max)
		}

		if len(ins.Unexpected) > 0 {
			fmt.Printf("\n=== UNEXPECTED OBJECTS ===\n%s\n", strings.Join(ins.Unexpected, "\n"))
		}

		fmt.Printf("\n=== VALIDATION ===\n")
		if ins.ValidErr != nil {
			fmt.Printf("invalid: %v\n", ins.ValidErr)
			return &exitError{code: ExitFailed, err: fmt.Errorf("%s does not match the recording layout", ins.Path)}
		}
		fmt.Printf("valid: %d chunks (%s of signal)\n", ins.Valid, time.Duration(ins.Valid)*mea.ChunkInterval)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
