package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipcorrelator/otuscorr/internal/dissect"
	"github.com/sipcorrelator/otuscorr/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats <pcap-file>",
	Short: "Replay a capture and print call totals",
	Long: `stats replays a pcap capture the same way replay does, but prints
only the {total, displayed} view instead of the full call list. No
display filter is wired in this CLI, so displayed == total.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(args[0])
	},
}

func runStats(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Init(cfg.Capture, cfg.Match, cfg.Sort)
	if err != nil {
		return fmt.Errorf("cmd: init store: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cmd: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := dissect.Replay(f, st); err != nil {
		return fmt.Errorf("cmd: replay %s: %w", path, err)
	}

	s := st.ComputeStats(nil)
	fmt.Printf("total=%d displayed=%d active=%d\n", s.Total, s.Displayed, len(st.ActiveCalls()))
	return nil
}
