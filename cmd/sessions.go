package cmd

import (
	"fmt"
	"time"

	"github.com/livemea/mearec/internal/service"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent recording sessions",
	Long:  `List the sessions stored in the session catalog (catalog.path), most recent first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		svc := service.New(cfg, cfgFile, nil)
		entries, err := svc.Sessions(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No sessions recorded yet.")
			return nil
		}

		fmt.Printf("%-20s  %-19s  %-3s  %-9s  %-7s  %s\n", "SESSION", "STARTED", "MEA", "STATE", "CHUNKS", "PATH")
		for _, e := range entries {
			fmt.Printf("%-20s  %-19s  %-3d  %-9s  %3d/%-3d  %s\n",
				e.ID, e.StartedAt.Format("2006-01-02 15:04:05"), e.MEAID, e.State,
				e.ChunksWritten, e.ChunkCount, e.Path)
			if e.Error != "" {
				fmt.Printf("    %s (after %s)\n", e.Error, e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond))
			}
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().IntP("limit", "n", 20, "number of sessions to show (0 for all)")
	rootCmd.AddCommand(sessionsCmd)
}
