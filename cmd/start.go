package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/pollcore/internal/cachecfg"
	"firestige.xyz/pollcore/internal/daemon"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pollcore daemon",
	Long:  "Start the pollcore daemon and begin polling configured items.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if foreground {
			return runForeground()
		}
		return daemon.EnsureDaemonRunning()
	},
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground (for systemd)")
}

// runForeground runs the daemon loop directly in this process, blocking
// until a shutdown signal or RTC SHUTDOWN command.
func runForeground() error {
	// The authoritative configuration cache and availability IPC transport
	// are external collaborators (spec.md §1); until this agent is wired
	// into the rest of the monitoring system, an in-memory cache stands in
	// for local experimentation and the availability sink is left unset.
	cache := cachecfg.NewMemCache()

	d, err := daemon.New(configFile, pidFile, cache, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return d.Run()
}
