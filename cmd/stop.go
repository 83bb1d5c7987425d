package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pollcore/internal/daemon"
	"firestige.xyz/pollcore/internal/rtc"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the pollcore daemon",
	Long: `Stop the pollcore daemon gracefully.

Sends a SHUTDOWN command to the running daemon over its RTC control socket.
The daemon drains in-flight checks, stops the pollers and preprocessor, and
exits cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStopCommand()
	},
}

func runStopCommand() {
	client := rtc.NewClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.Shutdown(ctx)
	if err != nil {
		// The control socket may be gone while the process itself lingers
		// (e.g. the daemon wedged before the RTC server came up); fall back
		// to a direct SIGTERM via the PID file.
		if fallbackErr := daemon.StopDaemon(); fallbackErr != nil {
			exitWithError("daemon is not running or socket is inaccessible", err)
		} else {
			fmt.Println("Shutdown requested (via PID signal fallback).")
		}
		return
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("shutdown failed: %s", resp.Error.Message), nil)
		return
	}

	fmt.Println("Shutdown requested.")
}
