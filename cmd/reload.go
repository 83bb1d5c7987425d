package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pollcore/internal/rtc"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the daemon's configuration",
	Long: `Reload tells the running pollcore daemon to re-read its configuration
file over the RTC control socket, without restarting the process.

Some tunables (log level/pattern, worker pool size, dispatch concurrency,
hysteresis delays) are fixed at daemon start and only take effect after a
restart; the daemon logs a warning naming any such field it sees change.`,
	Run: func(cmd *cobra.Command, args []string) {
		runReloadCommand()
	},
}

func runReloadCommand() {
	client := rtc.NewClient(socketPath, 10*time.Second)
	ctx := context.Background()

	fmt.Println("Sending reload signal to daemon...")
	resp, err := client.ReloadConfig(ctx)
	if err != nil {
		exitWithError("failed to send reload command", err)
		return
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("config reload failed: %s", resp.Error.Message), nil)
		return
	}

	fmt.Println("Configuration reloaded successfully.")
}
