package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestNewClient(t *testing.T) {
	client := NewClient("ws://example.com/ws")

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.url != "ws://example.com/ws" {
		t.Errorf("url = %v, want %v", client.url, "ws://example.com/ws")
	}
	if client.done == nil {
		t.Error("done channel not initialized")
	}
}

func TestNewClientEmptyURL(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewClient with empty URL should panic")
		}
	}()

	NewClient("")
}

func TestClientCloseIdempotent(t *testing.T) {
	client := NewClient("ws://example.com/ws")

	for i := 0; i < 5; i++ {
		if err := client.Close(); err != nil {
			t.Errorf("Close() iteration %d failed: %v", i, err)
		}
	}

	select {
	case <-client.done:
	default:
		t.Error("done channel should be closed after Close()")
	}

	if err := client.Connect(context.Background()); err == nil {
		t.Error("Connect() after Close() should fail")
	}
}

func TestClientSubscribeSendsTable(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan Request, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		received <- req
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(wsURL(server))
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.Subscribe("trading_alerts"); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	select {
	case req := <-received:
		if req.Method != MethodSubscribe || req.Table != "trading_alerts" {
			t.Errorf("request = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive subscribe request")
	}
}

func TestClientMessageAndDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(map[string]any{
			"channel": "system",
			"data":    map[string]string{"status": "SUBSCRIBED"},
		})
		// 服务端主动断开
		_ = conn.Close()
	}))
	defer server.Close()

	messages := make(chan WsMessage, 4)
	disconnected := make(chan struct{})

	client := NewClient(wsURL(server))
	client.SetMessageHandler(func(msg WsMessage) error {
		messages <- msg
		return nil
	})
	client.SetDisconnectCallback(func() { close(disconnected) })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer client.Close()

	select {
	case msg := <-messages:
		if msg.Channel != ChannelSystem {
			t.Errorf("channel = %v, want system", msg.Channel)
		}
		if string(msg.Data) != `{"status":"SUBSCRIBED"}` {
			t.Errorf("data = %s", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message handler was not called")
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback was not called")
	}

	if len(messages) != 0 {
		t.Errorf("malformed frame should be dropped, got %d extra messages", len(messages))
	}
}

func TestClientCloseSuppressesDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	called := make(chan struct{}, 1)
	client := NewClient(wsURL(server))
	client.SetDisconnectCallback(func() { called <- struct{}{} })

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	_ = client.Close()

	select {
	case <-called:
		t.Error("disconnect callback fired after Close()")
	case <-time.After(300 * time.Millisecond):
	}
}
