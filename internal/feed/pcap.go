package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ErrInvalidPort is returned for a UDP port outside 0-65535.
var ErrInvalidPort = errors.New("UDP port out of range 0-65535")

// PCAPSource replays frames captured as UDP datagrams in a pcap file. It reads
// the file with the pure-Go pcapgo reader so replay needs no libpcap.
type PCAPSource struct {
	file    *os.File
	reader  *pcapgo.Reader
	udpPort uint16
	stats   *Stats
	packets int
}

// NewPCAPSource opens path and yields datagrams sent to udpPort. A zero port
// accepts every UDP payload.
func NewPCAPSource(path string, udpPort int) (*PCAPSource, error) {
	if udpPort < 0 || udpPort > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, udpPort)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read PCAP header %s: %w", path, err)
	}
	return &PCAPSource{file: f, reader: r, udpPort: uint16(udpPort), stats: NewStats()}, nil
}

// Stats returns the source's counters.
func (s *PCAPSource) Stats() *Stats { return s.stats }

func (s *PCAPSource) Close() error { return s.file.Close() }

func (s *PCAPSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		data, _, err := s.reader.ReadPacketData()
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		if err != nil {
			return Frame{}, fmt.Errorf("read PCAP packet %d: %w", s.packets+1, err)
		}
		s.packets++

		packet := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if s.udpPort != 0 && uint16(udp.DstPort) != s.udpPort {
			continue
		}

		f, err := Decode(udp.Payload)
		if err != nil {
			noteMalformed(s.stats, fmt.Sprintf("packet %d", s.packets), err)
			continue
		}
		noteRejected(s.stats, fmt.Sprintf("packet %d", s.packets), f)
		s.stats.AddFrame(len(udp.Payload))
		return f, nil
	}
}
