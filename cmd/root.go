package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/livemea/mearec/internal/config"
	"github.com/livemea/mearec/internal/mea"
	"github.com/livemea/mearec/internal/planner"
	"github.com/livemea/mearec/internal/recorder"
	"github.com/livemea/mearec/internal/service"

	"github.com/spf13/cobra"
)

// Process exit codes
const (
	ExitCompleted = 0
	ExitFailed    = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int

	duration int
	savePath string
	meaID    int
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "mearec",
	Short: "Record live MEA telemetry to HDF5",
	Long: `mearec records a bounded window of live multi-electrode-array data
from the LiveMEA service and stores it as an HDF5 file.

Each chunk of 32 electrodes x 4096 samples (about 1.09 s of signal) becomes
a group "timestamp_<i>" holding datasets "electrode_0" to "electrode_31".
One chunk is recorded per requested second.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// For sources command, only load config if explicitly provided
		if cmd.Name() == "sources" && cfgFile == "" {
			return nil
		}

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/mearec.yaml")
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return &exitError{code: ExitUsage, err: fmt.Errorf("failed to load config: %w", err)}
		}

		return nil
	},
	RunE: runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	path := savePath
	if !cmd.Flags().Changed("path") && cfg.Output.Path != "" {
		path = cfg.Output.Path
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interruption
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Stopping recording...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	svc := service.New(cfg, cfgFile, os.Stdout)
	res, err := svc.Record(ctx, service.RecordRequest{
		Path:     path,
		Duration: duration,
		MEAID:    meaID,
	})
	if err != nil {
		return &exitError{code: exitCode(err), err: err}
	}

	fmt.Printf("Recorded %d chunks from MEA %d to %s (session %s)\n",
		res.ChunksWritten, res.Plan.MEAID, res.Plan.SavePath, res.SessionID)
	return nil
}

// exitCode maps a recording error onto the process exit status.
func exitCode(err error) int {
	var sessionErr *recorder.SessionError
	switch {
	case err == nil:
		return ExitCompleted
	case mea.IsValidation(err):
		return ExitUsage
	case errors.As(err, &sessionErr) && sessionErr.State == recorder.StateCancelled:
		return ExitCancelled
	default:
		return ExitFailed
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		code := ExitFailed
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			code = exitErr.code
		}
		os.Exit(code)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mearec.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	addRecordFlags(rootCmd)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &exitError{code: ExitUsage, err: err}
	})

	// Add subcommands
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// addRecordFlags registers the session flags shared by the root and record commands.
func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&duration, "duration", "d", planner.DefaultDuration, "recording duration in seconds (one chunk per second)")
	cmd.Flags().StringVarP(&savePath, "path", "p", planner.DefaultPath, "output HDF5 file (overrides output.path)")
	cmd.Flags().IntVarP(&meaID, "MEA", "m", 0, fmt.Sprintf("MEA device id (0-%d)", mea.DeviceCount-1))
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
