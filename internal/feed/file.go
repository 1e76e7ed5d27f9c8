package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

const maxLineBytes = 1 << 20

// scannedLine is one line handed from the reader goroutine to Next. err is
// set on the final value only.
type scannedLine struct {
	data []byte
	num  int
	err  error
}

// FileSource reads newline-delimited JSON frames. Blank lines and lines
// starting with '#' are skipped. The reader is drained on its own goroutine
// so Next returns on cancellation even while a read on stdin or a pipe is
// blocked.
type FileSource struct {
	scan  *bufio.Scanner
	stats *Stats

	once  sync.Once
	lines chan scannedLine
	done  chan struct{}
	stop  sync.Once
}

// NewFileSource reads frames from r.
func NewFileSource(r io.Reader) *FileSource {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &FileSource{
		scan:  scan,
		stats: NewStats(),
		lines: make(chan scannedLine),
		done:  make(chan struct{}),
	}
}

// Stats returns the source's counters.
func (s *FileSource) Stats() *Stats { return s.stats }

// Close stops the reader goroutine once its current read returns. It does
// not close the underlying reader.
func (s *FileSource) Close() error {
	s.stop.Do(func() { close(s.done) })
	return nil
}

func (s *FileSource) readLoop() {
	defer close(s.lines)
	num := 0
	for s.scan.Scan() {
		num++
		data := bytes.TrimSpace(s.scan.Bytes())
		if len(data) == 0 || data[0] == '#' {
			continue
		}
		line := scannedLine{data: append([]byte(nil), data...), num: num}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	err := io.EOF
	if scanErr := s.scan.Err(); scanErr != nil {
		err = fmt.Errorf("read frames: %w", scanErr)
	}
	select {
	case s.lines <- scannedLine{err: err}:
	case <-s.done:
	}
}

func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	s.once.Do(func() { go s.readLoop() })
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return Frame{}, io.EOF
			}
			if line.err != nil {
				return Frame{}, line.err
			}
			source := fmt.Sprintf("line %d", line.num)
			f, err := Decode(line.data)
			if err != nil {
				noteMalformed(s.stats, source, err)
				continue
			}
			noteRejected(s.stats, source, f)
			s.stats.AddFrame(len(line.data))
			return f, nil
		}
	}
}
