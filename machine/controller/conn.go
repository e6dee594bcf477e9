package controller

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// ErrClosed is returned once the connection has been closed or the
	// transport failed.
	ErrClosed = errors.New("controller connection closed")

	// ErrTimeout is returned when no completion marker arrives in time.
	ErrTimeout = errors.New("controller command timed out")
)

// CommandError is returned when the controller answers a command with an
// "error: " line.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("controller rejected %q: %s", e.Command, e.Message)
}

// Response is every line received for one command, including the
// terminating "ok" or "error: " line.
type Response struct {
	Lines []string
	Err   error
}

type request struct {
	cmd   string
	lines []string
	done  chan Response
}

// Conn is a protocol session with a controller.
//
// A single reader goroutine assembles lines from the transport. Commands are
// not pipelined: Command holds a lock from write until the completion
// marker, so every response batch belongs to exactly one command.
type Conn struct {
	rw io.ReadWriteCloser

	mx  sync.Mutex
	wMx sync.Mutex

	stateMx  sync.Mutex
	inflight *request
	readErr  error

	unsolicited chan string

	closeOnce sync.Once
	closeCh   chan struct{}
	readDone  chan struct{}
}

// NewConn starts reading from rw. The transport should return from Read
// periodically (a read timeout), otherwise Close cannot join the reader.
func NewConn(rw io.ReadWriteCloser) *Conn {
	c := &Conn{
		rw:          rw,
		unsolicited: make(chan string, 64),
		closeCh:     make(chan struct{}),
		readDone:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Unsolicited delivers lines that arrived while no command was waiting.
// Lines are dropped when nobody keeps up with the channel.
func (c *Conn) Unsolicited() <-chan string { return c.unsolicited }

// Close stops the reader, waits for it to exit and then closes the
// transport.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		<-c.readDone
		err = c.rw.Close()
	})
	return err
}

// isTimeout reports whether err only means no data arrived in time. io.EOF
// is the end of the stream; transports that signal a timeout that way are
// wrapped by their opener.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Conn) readLoop() {
	defer close(c.readDone)

	buf := make([]byte, 256)
	var line []byte
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		n, err := c.rw.Read(buf)
		for _, b := range buf[:n] {
			if b != '\n' {
				line = append(line, b)
				continue
			}
			c.handleLine(strings.TrimRight(string(line), "\r"))
			line = line[:0]
		}
		if err != nil && !isTimeout(err) {
			select {
			case <-c.closeCh:
			default:
				log.Println("ERROR: read from controller:", err)
			}
			c.fail(err)
			return
		}
	}
}

// terminal reports whether line ends a response batch.
func terminal(cmd, line string) (bool, error) {
	if line == "ok" {
		return true, nil
	}
	if strings.HasPrefix(line, "error: ") {
		return true, &CommandError{Command: cmd, Message: strings.TrimPrefix(line, "error: ")}
	}
	return false, nil
}

func (c *Conn) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	c.stateMx.Lock()
	req := c.inflight
	if req == nil {
		c.stateMx.Unlock()
		select {
		case c.unsolicited <- line:
		default:
		}
		return
	}
	req.lines = append(req.lines, line)
	done, err := terminal(req.cmd, line)
	if done {
		c.inflight = nil
	}
	c.stateMx.Unlock()

	if done {
		req.done <- Response{Lines: req.lines, Err: err}
	}
}

func (c *Conn) fail(err error) {
	c.stateMx.Lock()
	c.readErr = fmt.Errorf("%w: %v", ErrClosed, err)
	req := c.inflight
	c.inflight = nil
	c.stateMx.Unlock()

	if req != nil {
		req.done <- Response{Lines: req.lines, Err: c.readErr}
	}
}

// WriteLine writes a single line without waiting for a response.
func (c *Conn) WriteLine(line string) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	c.wMx.Lock()
	defer c.wMx.Unlock()
	_, err := io.WriteString(c.rw, line+"\n")
	return err
}

// Command sends cmd and blocks until the controller reports completion.
// A zero timeout waits indefinitely.
func (c *Conn) Command(cmd string, timeout time.Duration) (Response, error) {
	c.mx.Lock()
	defer c.mx.Unlock()

	req := &request{cmd: cmd, done: make(chan Response, 1)}
	c.stateMx.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.stateMx.Unlock()
		return Response{}, err
	}
	c.inflight = req
	c.stateMx.Unlock()

	err := c.WriteLine(cmd)
	if err != nil {
		c.abandon(req)
		return Response{}, err
	}

	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}

	select {
	case resp := <-req.done:
		return resp, resp.Err
	case <-expire:
		lines := c.abandon(req)
		return Response{Lines: lines}, fmt.Errorf("%w: %q after %s", ErrTimeout, cmd, timeout)
	case <-c.closeCh:
		c.abandon(req)
		return Response{}, ErrClosed
	}
}

// abandon detaches req if it is still waiting and returns what it collected.
func (c *Conn) abandon(req *request) []string {
	c.stateMx.Lock()
	defer c.stateMx.Unlock()
	if c.inflight == req {
		c.inflight = nil
	}
	return append([]string(nil), req.lines...)
}
