package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/camspeed/internal/feed"
	"github.com/banshee-data/camspeed/internal/serialmux"
)

var errNoFeed = errors.New("no detection feed configured")

// feedOptions holds the mutually exclusive feed flags.
type feedOptions struct {
	File       string
	UDPAddr    string
	UDPRcvBuf  int
	PCAP       string
	PCAPPort   int
	SerialPort string
	Serial     serialmux.PortOptions
}

// openedFeed is a started source plus whatever must be closed with it.
type openedFeed struct {
	source      feed.Source
	description string
	stats       *feed.Stats
	mux         serialmux.SerialMuxInterface // nil unless reading a serial device
	closers     []io.Closer
}

func (f *openedFeed) Close() {
	for i := len(f.closers) - 1; i >= 0; i-- {
		f.closers[i].Close()
	}
}

// openFeed opens exactly one configured source. It returns errNoFeed when
// none is set.
func openFeed(o feedOptions, opener serialmux.PortOpener) (*openedFeed, error) {
	set := 0
	for _, v := range []string{o.File, o.UDPAddr, o.PCAP, o.SerialPort} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, errNoFeed
	case set > 1:
		return nil, fmt.Errorf("only one of -feed-file, -feed-udp, -feed-pcap, -serial-port may be set")
	}

	switch {
	case o.File == "-":
		src := feed.NewFileSource(os.Stdin)
		return &openedFeed{source: src, description: "file:stdin", stats: src.Stats(), closers: []io.Closer{src}}, nil

	case o.File != "":
		fh, err := os.Open(o.File)
		if err != nil {
			return nil, fmt.Errorf("open feed file: %w", err)
		}
		src := feed.NewFileSource(fh)
		return &openedFeed{source: src, description: "file:" + o.File, stats: src.Stats(), closers: []io.Closer{fh, src}}, nil

	case o.UDPAddr != "":
		src, err := feed.ListenUDP(o.UDPAddr, o.UDPRcvBuf)
		if err != nil {
			return nil, err
		}
		return &openedFeed{source: src, description: "udp:" + src.Addr().String(), stats: src.Stats(), closers: []io.Closer{src}}, nil

	case o.PCAP != "":
		src, err := feed.NewPCAPSource(o.PCAP, o.PCAPPort)
		if err != nil {
			return nil, err
		}
		return &openedFeed{source: src, description: "pcap:" + o.PCAP, stats: src.Stats(), closers: []io.Closer{src}}, nil

	default:
		m, err := serialmux.Open(o.SerialPort, o.Serial, opener)
		if err != nil {
			return nil, err
		}
		src := feed.NewSerialSource(m)
		return &openedFeed{
			source:      src,
			description: "serial:" + o.SerialPort,
			stats:       src.Stats(),
			mux:         m,
			closers:     []io.Closer{m, src},
		}, nil
	}
}
