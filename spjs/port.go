package spjs

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPortOpen is returned when a port is already opened through the client.
var ErrPortOpen = errors.New("port already open")

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// Port is a remote serial port. Read returns no data, rather than
// blocking, once readTimeout passes without a frame.
type Port struct {
	c           *Client
	name        string
	readTimeout time.Duration

	data    chan string
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

var _ io.ReadWriteCloser = &Port{}

// OpenPort asks the server to open name at baud and routes its data to
// the returned Port.
func (c *Client) OpenPort(name string, baud int, readTimeout time.Duration) (*Port, error) {
	if readTimeout <= 0 {
		readTimeout = 100 * time.Millisecond
	}
	p := &Port{
		c:           c,
		name:        name,
		readTimeout: readTimeout,
		data:        make(chan string, 1000),
		closed:      make(chan struct{}),
	}

	c.mx.Lock()
	if c.ports[name] != nil {
		c.mx.Unlock()
		return nil, ErrPortOpen
	}
	c.ports[name] = p.data
	c.mx.Unlock()

	err := c.WriteString("open " + name + " " + strconv.Itoa(baud))
	if err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

func (p *Port) release() {
	p.c.mx.Lock()
	delete(p.c.ports, p.name)
	p.c.mx.Unlock()
}

func (p *Port) Name() string { return p.name }

// Write sends each line of b as a separate queued command.
func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	j := JSON{Port: p.name}
	for _, line := range strings.SplitAfter(string(b), "\n") {
		if line == "" {
			continue
		}
		j.Data = append(j.Data, Data{Data: line, ID: nextID()})
	}
	if len(j.Data) == 0 {
		return 0, nil
	}
	err := p.c.SendJSON(j)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *Port) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		t := time.NewTimer(p.readTimeout)
		defer t.Stop()
		select {
		case s := <-p.data:
			p.pending = []byte(s)
		case <-t.C:
			return 0, nil
		case <-p.closed:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Close asks the server to close the port.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.release()
		err = p.c.WriteString("close " + p.name)
	})
	return err
}
