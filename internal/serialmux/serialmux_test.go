package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func receive(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func TestSerialMux_SubscribeUniqueIDs(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	assert.NotEqual(t, id1, id2)
	assert.NotNil(t, ch1)
	assert.NotNil(t, ch2)
	assert.Equal(t, SubscriberBuffer, cap(ch1))
}

func TestSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	// unknown ids are ignored
	mux.Unsubscribe("missing")
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("STREAM ON"))
	require.NoError(t, mux.SendCommand("RATE 30\n"))
	assert.Equal(t, "STREAM ON\nRATE 30\n", port.Written())

	port.WriteError = errors.New("boom")
	err := mux.SendCommand("X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData("{\"frame\":1}\n\n  \n{\"frame\":2}\n")

	assert.Equal(t, `{"frame":1}`, receive(t, a))
	assert.Equal(t, `{"frame":1}`, receive(t, b))
	assert.Equal(t, `{"frame":2}`, receive(t, a))
	assert.Equal(t, `{"frame":2}`, receive(t, b))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_MonitorReturnsNilAtEOF(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	port.AddReadData("{\"frame\":1}\n")
	port.SetEOF()

	assert.NoError(t, mux.Monitor(context.Background()))
}

func TestSerialMux_CloseStopsMonitor(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	require.NoError(t, mux.Close())

	_, ok := <-ch
	assert.False(t, ok)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}

	// subscribing after close yields a closed channel
	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestSerialMux_DropsForSlowSubscriber(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	_, ch := mux.Subscribe()

	for i := 0; i < SubscriberBuffer+5; i++ {
		mux.broadcast("line")
	}
	assert.Len(t, ch, SubscriberBuffer)
	assert.Equal(t, uint64(5), mux.Dropped())
}

func TestSerialMux_AdminSendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"get not allowed", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"missing command", http.MethodPost, url.Values{}, http.StatusBadRequest},
		{"ok", http.MethodPost, url.Values{"command": {"PING"}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/debug/serial/send-command", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			// tsweb.Debugger only serves loopback callers.
			req.RemoteAddr = "127.0.0.1:1234"
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "PING\n", port.Written())
}

func TestOpen_UsesNormalisedMode(t *testing.T) {
	var gotPath string
	var gotMode *serial.Mode
	opener := func(path string, mode *serial.Mode) (SerialPorter, error) {
		gotPath, gotMode = path, mode
		return NewTestableSerialPort(), nil
	}

	mux, err := Open("/dev/ttyUSB0", PortOptions{Parity: "even", StopBits: 2}, opener)
	require.NoError(t, err)
	require.NotNil(t, mux)

	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, DefaultBaudRate, gotMode.BaudRate)
	assert.Equal(t, serial.EvenParity, gotMode.Parity)
	assert.Equal(t, serial.TwoStopBits, gotMode.StopBits)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("/dev/x", PortOptions{DataBits: 9}, nil)
	require.Error(t, err)

	failing := func(string, *serial.Mode) (SerialPorter, error) { return nil, errors.New("no device") }
	_, err = Open("/dev/x", PortOptions{}, failing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open serial port /dev/x")
}
