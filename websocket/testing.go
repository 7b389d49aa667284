package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewTestingEnv creates a testing environment to unit test handlers. It
// returns a client connected to a server running the handlers created by
// newHandler, and a function to release the environment.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}

	config.Header.Set("User-Agent", "ted")
	config.Header.Set("X-Forwarded-For", "192.0.0.0")
	config.Header.Set(HeaderClientID, uuid.NewString())

	client, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}

	return client, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil

		client.Close()
		server.Close()
	}
}

// SendRequest sends req with the given client.
func SendRequest(t *testing.T, client *websocket.Conn, req Request) {
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("error encoding request: %s", err)
	}

	if err := websocket.Message.Send(client, string(b)); err != nil {
		t.Fatalf("error sending request: %s", err)
	}
}

// ReceiveResponse waits for the next response of the given type, skipping
// the other ones.
func ReceiveResponse(t *testing.T, client *websocket.Conn, msgType MsgType) Response {
	client.SetReadDeadline(time.Now().Add(time.Second * 5))
	defer client.SetReadDeadline(time.Time{})

	for {
		var b []byte
		if err := websocket.Message.Receive(client, &b); err != nil {
			t.Fatalf("error receiving response: %s", err)
		}

		var res Response
		if err := json.Unmarshal(b, &res); err != nil {
			t.Fatalf("error decoding response: %s", err)
		}

		if res.Type == msgType {
			return res
		}
	}
}
