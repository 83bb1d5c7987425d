// Package cmd implements the CLI commands for the pollcore agent using the
// cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	socketPath string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pollcored",
	Short: "pollcore - asynchronous monitoring agent poller/preprocessor core",
	Long: `pollcore polls agent, HTTP and SNMP items on a fixed dispatch cycle,
tracks per-interface availability with activation/deactivation hysteresis,
and runs a worker pool that applies preprocessing step plans to raw check
results before they are handed back to history storage.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/pollcore/config.yml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/pollcore.sock", "rtc control socket path")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "/var/run/pollcore.pid", "pid file path")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reloadCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
