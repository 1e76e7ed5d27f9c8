package serialmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialPorter defines the minimal interface needed for a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOpener opens a serial port. Tests substitute their own.
type PortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerialPort opens a real device with go.bug.st/serial.
func OpenSerialPort(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// Open normalises opts, opens path with opener and wraps the port in a mux.
func Open(path string, opts PortOptions, opener PortOpener) (*SerialMux[SerialPorter], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if opener == nil {
		opener = OpenSerialPort
	}
	port, err := opener(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialMux[SerialPorter](port), nil
}
