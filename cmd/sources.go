package cmd

import (
	"fmt"
	"strings"

	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/source"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List chunk source backends and MEA devices",
	Long:  `List the chunk source backends that can feed a recording and the MEA device ids accepted by --MEA.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		selected := ""
		if cfg != nil {
			selected = strings.ToLower(cfg.Source.Backend)
		}

		fmt.Printf("Source backends\n")
		fmt.Printf("═══════════════════════════════════════\n")
		for _, b := range source.Backends() {
			marker := " "
			if string(b) == selected {
				marker = "*"
			}
			fmt.Printf(" %s %-10s %s\n", marker, b, describeBackend(b))
		}

		fmt.Printf("\nMEA devices\n")
		fmt.Printf("═══════════════════════════════════════\n")
		for id := 0; id < mea.DeviceCount; id++ {
			fmt.Printf("  %d. MEA %d: %d electrodes, %d samples per chunk\n", id, id, mea.Electrodes, mea.SamplesPerChunk)
		}

		if cfg != nil && cfg.Source.Backend == string(source.BackendReplay) {
			fmt.Printf("\nReplay file: %s\n", cfg.Source.ReplayFile)
		}
		return nil
	},
}

func describeBackend(b source.BackendType) string {
	switch b {
	case source.BackendSynthetic:
		return "deterministic per-device test signal"
	case source.BackendReplay:
		return "re-emits the chunks of an existing recording (source.replay_file)"
	default:
		return ""
	}
}
