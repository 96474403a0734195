package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipcorrelator/otuscorr/internal/dissect"
	"github.com/sipcorrelator/otuscorr/internal/store"
)

var replayCmd = &cobra.Command{
	Use:   "replay <pcap-file>",
	Short: "Replay a pcap capture through the correlation store",
	Long: `Replay decodes a libpcap-format capture file, classifies each UDP
payload as SIP, RTP or RTCP, feeds it to a fresh correlation store, and
prints the resulting call list and drop counters.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(args[0])
	},
}

func runReplay(path string) error {
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

	rstats, err := dissect.Replay(f, st)
	if err != nil {
		return fmt.Errorf("cmd: replay %s: %w", path, err)
	}

	printCalls(st)
	fmt.Printf("\npackets=%d sip=%d rtp=%d rtcp=%d skipped=%d\n",
		rstats.Packets, rstats.SIP, rstats.RTP, rstats.RTCP, rstats.Skipped)
	printCounters(st)
	return nil
}

func printCalls(st *store.Store) {
	for _, c := range st.Calls() {
		fmt.Printf("#%d %-32s %-10s msgs=%d locked=%v\n",
			c.Index, c.CallID, c.State, len(c.Messages), c.Locked)
	}
}

func printCounters(st *store.Store) {
	c := st.Counters()
	fmt.Printf("drops: admission_filter=%d invite_only=%d complete_only=%d "+
		"fifo_full=%d correlation_miss=%d stream_limit=%d dissector=%d\n",
		c.AdmissionFilter, c.AdmissionInviteOnly, c.AdmissionCompleteOnly,
		c.AllLockedFIFOFull, c.CorrelationMiss, c.StreamLimitExceeded,
		c.DissectorInconsistency)
}
