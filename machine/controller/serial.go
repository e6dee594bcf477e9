package controller

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	bugserial "go.bug.st/serial"

	"github.com/tarm/serial"
)

// OpenSerial opens cfg.Port with a read timeout so the reader goroutine
// wakes up periodically.
func OpenSerial(cfg Config) (io.ReadWriteCloser, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if errors.Is(err, syscall.EBUSY) {
		return nil, fmt.Errorf("%w: %s", ErrPortBusy, cfg.Port)
	}
	if err != nil {
		return nil, err
	}
	return newTimeoutPort(p, cfg.ReadTimeout), nil
}

// ErrDeviceGone is returned by a serial port that keeps reporting end of
// file without waiting out its read timeout, as an unplugged device does.
var ErrDeviceGone = errors.New("serial device gone")

// maxFastEOF is how many consecutive early EOFs mean the device is gone.
const maxFastEOF = 3

// timeoutPort turns the zero byte io.EOF that tarm/serial returns when its
// read timeout expires into an empty read.
type timeoutPort struct {
	io.ReadWriteCloser
	timeout time.Duration
	fast    int
}

func newTimeoutPort(rw io.ReadWriteCloser, timeout time.Duration) *timeoutPort {
	return &timeoutPort{ReadWriteCloser: rw, timeout: timeout}
}

func (p *timeoutPort) Read(b []byte) (int, error) {
	start := time.Now()
	n, err := p.ReadWriteCloser.Read(b)
	if err != io.EOF {
		p.fast = 0
		return n, err
	}
	if n > 0 {
		p.fast = 0
		return n, nil
	}

	if time.Since(start) >= p.timeout/2 {
		p.fast = 0
		return 0, nil
	}
	p.fast++
	if p.fast >= maxFastEOF {
		return 0, ErrDeviceGone
	}
	return 0, nil
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := bugserial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
