package feed

import (
	"context"
	"io"

	"github.com/banshee-data/camspeed/internal/serialmux"
)

// SerialSource reads frames relayed line by line through a serial mux.
type SerialSource struct {
	mux   serialmux.SerialMuxInterface
	id    string
	lines chan string
	stats *Stats
}

// NewSerialSource subscribes to mux. Close unsubscribes.
func NewSerialSource(mux serialmux.SerialMuxInterface) *SerialSource {
	id, lines := mux.Subscribe()
	return &SerialSource{mux: mux, id: id, lines: lines, stats: NewStats()}
}

// Stats returns the source's counters.
func (s *SerialSource) Stats() *Stats { return s.stats }

func (s *SerialSource) Close() error {
	s.mux.Unsubscribe(s.id)
	return nil
}

func (s *SerialSource) Next(ctx context.Context) (Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return Frame{}, io.EOF
			}
			switch serialmux.ClassifyLine(line) {
			case serialmux.LineFrame:
			case serialmux.LineComment:
				continue
			default:
				noteMalformed(s.stats, "serial", ErrMalformedFrame)
				continue
			}
			f, err := Decode([]byte(line))
			if err != nil {
				noteMalformed(s.stats, "serial", err)
				continue
			}
			noteRejected(s.stats, "serial", f)
			s.stats.AddFrame(len(line))
			return f, nil
		}
	}
}
