// Package cmd implements the otus-corr CLI: a thin driver that wires
// config, logging, the dissector adapter and the correlation store
// together.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipcorrelator/otuscorr/internal/config"
	"github.com/sipcorrelator/otuscorr/internal/log"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "otus-corr",
	Short: "Passive SIP/RTP call correlation core",
	Long: `otus-corr replays a pcap capture through the call-and-stream
correlation core: it reconstructs SIP dialogs and the RTP/RTCP streams
they negotiate, without ever participating in the signaling itself.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it. It is
// called by main.main() and only needs to happen once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional; defaults are used when omitted)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig reads RootConfig and installs the process-wide logger from
// its Log section. Config resolves before anything that logs.
func loadConfig() (*config.RootConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("cmd: init log: %w", err)
	}
	return cfg, nil
}
