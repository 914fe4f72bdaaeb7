package cmd

import (
	"fmt"

	"github.com/livemea/mearec/internal/service"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the LiveMEA service",
	Long:  `Query the health, liveness and default device endpoints of the configured LiveMEA service (service.url).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, cfgFile, nil)
		st, err := svc.Status(cmd.Context())
		if st.Check != "" {
			fmt.Printf("Status - %s\n", st)
		}
		if err != nil {
			return err
		}
		if st.DefaultMEA >= 0 {
			fmt.Printf("Default MEA: %d\n", st.DefaultMEA)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
