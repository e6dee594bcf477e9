// Package spjs is a client for serial-port-json-server, which exposes the
// serial ports of a remote host over a websocket.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("spjs client closed")

// Client keeps a websocket connection to the server, reconnecting as
// needed.
type Client struct {
	url string

	mx          sync.RWMutex
	serialPorts []SerialPort
	ports       map[string]chan string

	outgoing chan message
	incoming chan interface{}

	closeOnce sync.Once
	closeCh   chan struct{}
	loopDone  chan struct{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

// Dial starts connecting to the server at url, e.g. "ws://localhost:8989/ws".
func Dial(url string) *Client {
	c := &Client{
		url:      url,
		ports:    make(map[string]chan string),
		outgoing: make(chan message, 1000),
		incoming: make(chan interface{}, 1000),
		closeCh:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go c.loop()

	return c
}

// Messages delivers everything from the server except data frames for
// ports opened through OpenPort. Messages are dropped if not consumed.
func (c *Client) Messages() <-chan interface{} {
	return c.incoming
}

// SerialPorts returns the most recent port list from the server.
func (c *Client) SerialPorts() []SerialPort {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return append([]SerialPort(nil), c.serialPorts...)
}

// Close stops reconnecting and closes the websocket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	<-c.loopDone
	return nil
}

func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) dispatch(val interface{}) {
	switch msg := val.(type) {
	case *SerialPortList:
		c.mx.Lock()
		c.serialPorts = msg.SerialPorts
		c.mx.Unlock()
	case *DataFrame:
		c.mx.RLock()
		ch := c.ports[msg.Port]
		c.mx.RUnlock()
		if ch != nil {
			select {
			case ch <- msg.Data:
			case <-c.closeCh:
			}
			return
		}
	}

	select {
	case c.incoming <- val:
	default:
	}
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				log.Println("ERROR: read:", err)
			}
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.Println("ERROR: read:", err)
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			log.Println("ERROR: parse:", err)
			continue
		}
		c.dispatch(val)
	}
}

func (c *Client) loop() {
	defer close(c.loopDone)
	var nextUp message

reconnect:
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		log.Println("Connecting to", c.url)
		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			select {
			case <-c.closeCh:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go c.readLoop(ws, ch)
		// refresh list on reconnect
		err = ws.WriteMessage(websocket.TextMessage, []byte("list"))
		if err != nil {
			log.Println("ERROR: send:", err)
		}

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: send:", err)
					ws.Close()
					<-ch
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-c.outgoing:
			case <-c.closeCh:
				ws.Close()
				<-ch
				return
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (c *Client) send(payload []byte) error {
	done := make(chan struct{})
	select {
	case c.outgoing <- message{done: done, payload: payload}:
	case <-c.closeCh:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-c.closeCh:
		return ErrClosed
	}
}

// SendJSON queues data for a port and waits until it has been written to
// the websocket.
func (c *Client) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(append([]byte("sendjson "), data...))
}

// WriteString sends a raw server command such as "list".
func (c *Client) WriteString(data string) error {
	return c.send([]byte(data))
}
