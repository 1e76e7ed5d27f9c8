package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxDatagramSize bounds a single frame datagram.
const MaxDatagramSize = 65507

// pollInterval is how often a blocked read wakes to check for cancellation.
const pollInterval = 100 * time.Millisecond

// UDPSocket is the subset of *net.UDPConn the UDP source needs.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSource reads one JSON frame per datagram.
type UDPSource struct {
	conn  UDPSocket
	buf   []byte
	stats *Stats
}

// ListenUDP binds addr (for example ":7400") and returns a source reading from
// it. rcvBuf sets the socket receive buffer when positive.
func ListenUDP(addr string, rcvBuf int) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}
	if rcvBuf > 0 {
		if err := conn.SetReadBuffer(rcvBuf); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set UDP receive buffer: %w", err)
		}
	}
	return NewUDPSource(conn), nil
}

// NewUDPSource reads from an existing socket.
func NewUDPSource(conn UDPSocket) *UDPSource {
	return &UDPSource{conn: conn, buf: make([]byte, MaxDatagramSize), stats: NewStats()}
}

// Addr returns the bound local address.
func (s *UDPSource) Addr() net.Addr { return s.conn.LocalAddr() }

// Stats returns the source's counters.
func (s *UDPSource) Stats() *Stats { return s.stats }

// Close releases the socket. A pending Next returns io.EOF.
func (s *UDPSource) Close() error { return s.conn.Close() }

func (s *UDPSource) Next(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		// The deadline lets the loop observe ctx between datagrams.
		if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("UDP read: %w", err)
		}
		f, err := Decode(s.buf[:n])
		if err != nil {
			noteMalformed(s.stats, fmt.Sprintf("datagram from %v", from), err)
			continue
		}
		noteRejected(s.stats, fmt.Sprintf("datagram from %v", from), f)
		s.stats.AddFrame(n)
		return f, nil
	}
}
