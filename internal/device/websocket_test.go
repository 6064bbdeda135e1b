package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// deviceServer answers every command with "<name># <command>".
func deviceServer(t *testing.T, name string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(name+" ready\n"))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd := strings.TrimSpace(string(msg))
			if cmd == "exit" {
				return
			}
			conn.WriteMessage(websocket.TextMessage, []byte(name+"# "+cmd+"\n"))
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newSession(t *testing.T) *WebSocket {
	t.Helper()
	ws := NewWebSocket(map[string]string{
		"DUT": deviceServer(t, "dut"),
		"AUX": deviceServer(t, "aux"),
	})
	ws.Quiet = 50 * time.Millisecond
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocketSession(t *testing.T) {
	ctx := context.Background()
	ws := newSession(t)

	if err := ws.SwitchDevice(ctx, "DUT"); err != nil {
		t.Fatalf("SwitchDevice: %v", err)
	}
	ok, err := ws.AwaitPattern(ctx, "ready", time.Second, false)
	if err != nil || !ok {
		t.Fatalf("banner: %v, %v", ok, err)
	}

	out, err := ws.SendCommand(ctx, "show version")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if out != "dut# show version\n" {
		t.Errorf("output = %q", out)
	}
	if ok, _ := ws.AwaitPattern(ctx, `dut# show \w+`, time.Second, false); !ok {
		t.Error("command output not buffered for expect")
	}

	if err := ws.SwitchDevice(ctx, "AUX"); err != nil {
		t.Fatal(err)
	}
	if out, _ := ws.SendCommand(ctx, "show clock"); !strings.Contains(out, "aux# show clock") {
		t.Errorf("aux output = %q", out)
	}
}

func TestWebSocketAwaitTimeout(t *testing.T) {
	ctx := context.Background()
	ws := newSession(t)
	ws.SwitchDevice(ctx, "DUT")

	start := time.Now()
	ok, err := ws.AwaitPattern(ctx, "never", 100*time.Millisecond, true)
	if err != nil || ok {
		t.Errorf("AwaitPattern = %v, %v", ok, err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("returned before the timeout")
	}
}

func TestWebSocketErrors(t *testing.T) {
	ctx := context.Background()
	ws := newSession(t)

	if _, err := ws.SendCommand(ctx, "x"); !errors.Is(err, ErrFatal) {
		t.Errorf("no device: err = %v", err)
	}
	if err := ws.SwitchDevice(ctx, "nowhere"); !errors.Is(err, ErrFatal) {
		t.Errorf("unknown device: err = %v", err)
	}

	ws.SwitchDevice(ctx, "DUT")
	if _, err := ws.SendCommand(ctx, "exit"); !errors.Is(err, ErrFatal) {
		t.Errorf("closed connection: err = %v", err)
	}
}
