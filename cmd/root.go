// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tscap/internal/config"
	"firestige.xyz/tscap/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tscap",
	Short: "tscap - Extract MPEG transport streams from pcap capture files",
	Long: `tscap reads pcap and pcap-ng capture files, reconstructs the IPv4/UDP
datagrams inside them and extracts the MPEG transport stream they carry.

Features:
  - pcap and pcap-ng input, including multi-section files
  - UDP source/destination filtering with automatic stream lock-on
  - Optional removal of single-PID packet encapsulation (plain or PES/KLVA)
  - Capture statistics with YAML output`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configFile != "" {
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		return log.Init(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug/info/warn/error)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(infoCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
