package spjs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSPJSMessage(t *testing.T) {
	parse := func(s string) interface{} {
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(s), &msg))
		v, err := parseSPJSMessage([]byte(s), msg)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, &DataFrame{Port: "COM3", Data: "ok\n"}, parse(`{"P":"COM3","D":"ok\n"}`))
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, parse(`{"Error":"port busy"}`))

	list := parse(`{"SerialPorts":[{"Name":"COM3","IsOpen":true,"Baud":115200}]}`).(*SerialPortList)
	require.Len(t, list.SerialPorts, 1)
	assert.Equal(t, "COM3", list.SerialPorts[0].Name)
	assert.True(t, list.SerialPorts[0].IsOpen)

	st := parse(`{"Cmd":"Complete","Id":"cmd_1","P":"COM3","Type":["Buf"],"D":["G4P0"]}`).(*CmdStatus)
	assert.Equal(t, "Complete", st.Cmd)
	assert.Equal(t, "cmd_1", st.ID)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"Foo":1}`), &msg))
	_, err := parseSPJSMessage([]byte(`{"Foo":1}`), msg)
	assert.Error(t, err)
}

// fakeServer answers list and echoes "ok" for every line sent to a port.
func fakeServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()
	received := make(chan string, 100)
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := up.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			s := string(data)
			received <- s

			// the server echoes commands back, which clients ignore
			ws.WriteMessage(websocket.TextMessage, data)

			switch {
			case s == "list":
				ws.WriteJSON(SerialPortList{SerialPorts: []SerialPort{{Name: "/dev/ttyACM0", Baud: 115200}}})
			case strings.HasPrefix(s, "sendjson "):
				var j JSON
				if json.Unmarshal([]byte(strings.TrimPrefix(s, "sendjson ")), &j) != nil {
					continue
				}
				for range j.Data {
					ws.WriteJSON(DataFrame{Port: j.Port, Data: "ok\n"})
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestClient_List(t *testing.T) {
	srv, _ := fakeServer(t)
	c := Dial(wsURL(srv))
	defer c.Close()

	require.Eventually(t, func() bool { return len(c.SerialPorts()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "/dev/ttyACM0", c.SerialPorts()[0].Name)
}

func TestPort(t *testing.T) {
	srv, received := fakeServer(t)
	c := Dial(wsURL(srv))
	defer c.Close()

	p, err := c.OpenPort("/dev/ttyACM0", 115200, 10*time.Millisecond)
	require.NoError(t, err)

	_, err = c.OpenPort("/dev/ttyACM0", 115200, 0)
	assert.ErrorIs(t, err, ErrPortOpen)

	n, err := p.Write([]byte("G4 P0\nM84\n"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	var got []byte
	buf := make([]byte, 64)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 6 && time.Now().Before(deadline) {
		n, err := p.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "ok\nok\n", string(got))

	require.NoError(t, p.Close())
	_, err = p.Read(buf)
	assert.Error(t, err)

	var cmds []string
	timeout := time.After(2 * time.Second)
	for len(cmds) < 4 {
		select {
		case s := <-received:
			cmds = append(cmds, s)
		case <-timeout:
			t.Fatalf("server saw %v", cmds)
		}
	}
	assert.Contains(t, cmds, "open /dev/ttyACM0 115200")
	assert.Contains(t, cmds, "close /dev/ttyACM0")
}

func TestClient_Closed(t *testing.T) {
	c := Dial("ws://127.0.0.1:1/ws")
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.WriteString("list"), ErrClosed)
}
