// Package transport opens and closes the serial link to the
// datalogger and provides blocking byte read/write with a per-call
// timeout. The OS-level tcgetattr/tcsetattr setup is delegated to
// github.com/goburrow/serial rather than hand-rolled.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// SupportedBaudRates are the recognized baud rates; any other
// requested rate falls back to DefaultBaudRate.
var SupportedBaudRates = map[int]bool{
	9600:   true,
	19200:  true,
	38400:  true,
	57600:  true,
	115200: true,
}

// DefaultBaudRate is used when the configured rate is not recognized.
const DefaultBaudRate = 9600

// Config describes the serial device to open.
type Config struct {
	Device   string
	BaudRate int
	// VTimeTenths is the inter-byte read timeout in tenths of a
	// second.
	VTimeTenths int
}

func (c Config) resolvedBaud() int {
	if SupportedBaudRates[c.BaudRate] {
		return c.BaudRate
	}
	return DefaultBaudRate
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.VTimeTenths) * 100 * time.Millisecond
}

// Transport is a mutex-protected handle to one open serial port. The
// orchestrator is single-threaded in practice, but the mutex keeps
// Close safe to call concurrently from a signal-handling goroutine
// while a read or write is in flight.
type Transport struct {
	mu   sync.Mutex
	cfg  Config
	port serial.Port
}

// Open opens the configured serial device with 8 data bits, 1 stop
// bit, no parity.
func Open(cfg Config) (*Transport, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("transport: device path required")
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.resolvedBaud(),
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Device, err)
	}

	return &Transport{cfg: cfg, port: port}, nil
}

// Close closes the underlying serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// Read returns whatever bytes are currently available, up to
// len(buf). A zero-length, nil-error return means no bytes are
// available right now.
func (t *Transport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return 0, fmt.Errorf("transport: not open")
	}
	n, err := t.port.Read(buf)
	if err != nil {
		// goburrow/serial returns an error on VTIME-driven read
		// timeout with zero bytes; that's normal "nothing available
		// right now" rather than a transport failure, so it is
		// swallowed here.
		if n == 0 {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

// Write blocks until all of bytes is queued. A partial write is
// treated as a transport failure.
func (t *Transport) Write(bytes []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return fmt.Errorf("transport: not open")
	}
	n, err := t.port.Write(bytes)
	if err != nil {
		return err
	}
	if n != len(bytes) {
		return fmt.Errorf("transport: partial write %d/%d bytes", n, len(bytes))
	}
	return nil
}

// SetTimeout re-opens the port with an escalated VTIME, used by
// RetryOnFail's adaptive back-off.
func (t *Transport) SetTimeout(tenths int) error {
	t.mu.Lock()
	cfg := t.cfg
	port := t.port
	t.mu.Unlock()

	cfg.VTimeTenths = tenths
	next, err := Open(cfg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.cfg = cfg
	t.port = next.port
	t.mu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	return nil
}
