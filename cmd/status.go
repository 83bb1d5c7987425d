package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pollcore/internal/rtc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  "Query the pollcore daemon for its current status over the RTC control socket.",
	Run: func(cmd *cobra.Command, args []string) {
		runStatusCommand()
	},
}

func runStatusCommand() {
	client := rtc.NewClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.Status(ctx)
	if err != nil {
		exitWithError("daemon is not running or socket is inaccessible", err)
		return
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("status query failed: %s", resp.Error.Message), nil)
		return
	}

	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
		return
	}
	fmt.Println(string(out))
}
