package wsbridge_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firasghr/wreqbridge/header"
	"github.com/firasghr/wreqbridge/metrics"
	"github.com/firasghr/wreqbridge/runtime"
	"github.com/firasghr/wreqbridge/wsbridge"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestConnect_TextRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()

	var (
		mu   sync.Mutex
		got  []string
		msgs = make(chan struct{}, 4)
	)
	cb := wsbridge.Callbacks{
		OnMessage: func(ev wsbridge.Event) {
			mu.Lock()
			got = append(got, ev.Text)
			mu.Unlock()
			msgs <- struct{}{}
		},
	}

	id, meta, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: wsURL, Emulation: "chrome_142", OS: "macos"}, cb)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = meta

	conn, ok := registry.Get(id)
	if !ok {
		t.Fatal("connection not found in registry after Connect")
	}

	if err := conn.SendText("hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case <-msgs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed text")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("got = %v, want [\"hello\"]", got)
	}
}

func TestConnect_BinaryRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()

	msgs := make(chan wsbridge.Event, 4)
	cb := wsbridge.Callbacks{OnMessage: func(ev wsbridge.Event) { msgs <- ev }}

	id, _, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: wsURL, Emulation: "chrome_142", OS: "macos"}, cb)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, _ := registry.Get(id)

	payload := []byte{0x01, 0x02, 0x03, 0xff}
	if err := conn.SendBinary(payload); err != nil {
		t.Fatalf("SendBinary: %v", err)
	}

	select {
	case ev := <-msgs:
		if ev.Kind != wsbridge.EventBinary {
			t.Errorf("Kind = %v, want EventBinary", ev.Kind)
		}
		if string(ev.Binary) != string(payload) {
			t.Errorf("Binary = %v, want %v", ev.Binary, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed binary frame")
	}
}

func TestConnect_CloseIsIdempotentAndRemovesFromRegistry(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()

	var (
		mu       sync.Mutex
		closeCnt int
	)
	closed := make(chan struct{}, 1)
	cb := wsbridge.Callbacks{
		OnClose: func(wsbridge.Event) {
			mu.Lock()
			closeCnt++
			mu.Unlock()
			select {
			case closed <- struct{}{}:
			default:
			}
		},
	}

	id, _, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: wsURL, Emulation: "chrome_142", OS: "macos"}, cb)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn, _ := registry.Get(id)

	if err := conn.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close event")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok := registry.Get(id); ok {
		t.Error("connection still present in registry after close")
	}

	mu.Lock()
	n := closeCnt
	mu.Unlock()
	if n != 1 {
		t.Errorf("onClose invoked %d times, want exactly 1", n)
	}
}

func TestConnect_RecordsOpenAndCloseMetrics(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()
	registry.Metrics = metrics.NewMetrics()

	closed := make(chan struct{}, 1)
	cb := wsbridge.Callbacks{
		OnClose: func(wsbridge.Event) {
			select {
			case closed <- struct{}{}:
			default:
			}
		},
	}

	id, _, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: wsURL, Emulation: "chrome_142", OS: "macos"}, cb)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	opened, _ := registry.Metrics.WSSnapshot()
	if opened != 1 {
		t.Errorf("WSConnectionsOpened = %d, want 1", opened)
	}

	conn, _ := registry.Get(id)
	if err := conn.Close(nil); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close event")
	}
	time.Sleep(50 * time.Millisecond)

	_, closedCount := registry.Metrics.WSSnapshot()
	if closedCount != 1 {
		t.Errorf("WSConnectionsClosed = %d, want 1", closedCount)
	}
}

func TestConnect_PropagatesCallerCookieHeader(t *testing.T) {
	var observed string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observed = r.Header.Get("Cookie")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()

	var hdrs header.OrderedHeader
	hdrs.Add("Cookie", "sid=abc123")

	_, _, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: wsURL, Emulation: "chrome_142", OS: "macos", Headers: &hdrs}, wsbridge.Callbacks{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if observed != "sid=abc123" {
		t.Errorf("server observed Cookie header %q, want %q", observed, "sid=abc123")
	}
}

func TestConnect_UnreachableServerErrors(t *testing.T) {
	host := runtime.NewHost(2)
	host.Start()
	defer host.Stop()

	registry := wsbridge.NewRegistry()
	_, _, err := wsbridge.Connect(context.Background(), registry, host, wsbridge.Options{URL: "ws://127.0.0.1:1", Emulation: "chrome_142", OS: "macos"}, wsbridge.Callbacks{})
	if err == nil {
		t.Fatal("expected an error connecting to an unreachable server")
	}
}
