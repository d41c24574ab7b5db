package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var sweepThreshold time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check every registered user once and push long-running entry reminders",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepThreshold, "threshold", 0, "override REMIND_THRESHOLD for this run")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if err := cfg.ValidatePush(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rc := a.reminderConfig()
	if sweepThreshold > 0 {
		rc.Threshold = sweepThreshold
	}

	res, err := a.scheduler(rc).Sweep(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
