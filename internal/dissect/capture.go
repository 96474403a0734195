package dissect

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/sipcorrelator/otuscorr/internal/log"
	"github.com/sipcorrelator/otuscorr/internal/proto"
	"github.com/sipcorrelator/otuscorr/internal/store"
)

// ReplayStats summarizes one Replay run, for the CLI to print.
type ReplayStats struct {
	Packets  int
	SIP      int
	RTP      int
	RTCP     int
	Skipped  int
}

// Replay reads a libpcap-format capture from r, decodes Ethernet/IP/UDP
// layers with gopacket, classifies each UDP payload as SIP, RTP or RTCP,
// and feeds the result to st.
func Replay(r io.Reader, st *store.Store) (ReplayStats, error) {
	var stats ReplayStats

	src, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("dissect: open pcap: %w", err)
	}
	logger := log.GetLogger()

	for {
		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("dissect: read packet: %w", err)
		}
		stats.Packets++

		pkt := gopacket.NewPacket(data, src.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			stats.Skipped++
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)

		srcIP, dstIP, ok := packetIPs(pkt)
		if !ok {
			stats.Skipped++
			continue
		}

		srcEP := proto.Endpoint{IP: srcIP, Port: uint16(udp.SrcPort)}
		dstEP := proto.Endpoint{IP: dstIP, Port: uint16(udp.DstPort)}
		payload := udp.Payload
		ts := ci.Timestamp

		switch {
		case LooksLikeSIP(payload):
			p, err := DecodeSIPPacket(payload, srcEP, dstEP, "UDP", ts)
			if err != nil {
				logger.WithError(err).Debug("dissect: dropping malformed sip packet")
				stats.Skipped++
				continue
			}
			if st.IngestSIP(p) != nil {
				stats.SIP++
			}
		case LooksLikeRTPOrRTCP(payload):
			if IsRTCP(payload) {
				p, err := DecodeRTCP(payload, srcEP, dstEP, ts)
				if err != nil {
					stats.Skipped++
					continue
				}
				if st.IngestRTCP(p) != nil {
					stats.RTCP++
				}
				continue
			}
			p, err := DecodeRTP(payload, srcEP, dstEP, ts)
			if err != nil {
				stats.Skipped++
				continue
			}
			if st.IngestRTP(p) != nil {
				stats.RTP++
			}
		default:
			stats.Skipped++
		}
	}

	return stats, nil
}

func packetIPs(pkt gopacket.Packet) (src, dst netip.Addr, ok bool) {
	if ip4 := pkt.Layer(layers.LayerTypeIPv4); ip4 != nil {
		l := ip4.(*layers.IPv4)
		src, _ = netip.AddrFromSlice(l.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(l.DstIP.To4())
		return src, dst, src.IsValid() && dst.IsValid()
	}
	if ip6 := pkt.Layer(layers.LayerTypeIPv6); ip6 != nil {
		l := ip6.(*layers.IPv6)
		src, _ = netip.AddrFromSlice(l.SrcIP.To16())
		dst, _ = netip.AddrFromSlice(l.DstIP.To16())
		return src, dst, src.IsValid() && dst.IsValid()
	}
	return netip.Addr{}, netip.Addr{}, false
}
