package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMsgInvalid = "ws_msg_invalid"
	ErrTypeMsgUnknown = "ws_msg_unknown"
)

// MsgType is the type of a message.
type MsgType string

const (
	MsgTypePing           MsgType = "ping"
	MsgTypePingResponse   MsgType = "ping_response"
	MsgTypeQuery          MsgType = "query"
	MsgTypeQueryResponse  MsgType = "query_response"
	MsgTypeAnchor         MsgType = "anchor"
	MsgTypeAnchorResponse MsgType = "anchor_response"
	MsgTypeStats          MsgType = "stats"
	MsgTypeError          MsgType = "error"
)

// Request is a message sent by a client.
type Request struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id,omitempty"`

	// The points to query, for query messages.
	Points []mgl64.Vec3 `json:"points,omitempty"`

	// The maximum vertical distance between a queried point and its ground
	// height, for query messages.
	MaxVerticalDelta float64 `json:"max_vertical_delta,omitempty"`

	// The new anchor, for anchor messages. A missing anchor clears it.
	Anchor *mgl64.Vec3 `json:"anchor,omitempty"`
}

// QueryResult is the ground height of a queried point.
type QueryResult struct {
	Point mgl64.Vec3 `json:"point"`
	OK    bool       `json:"ok"`
}

// Response is a message sent to a client.
type Response struct {
	Type      MsgType   `json:"type"`
	RequestID uint32    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Results []QueryResult `json:"results,omitempty"`
	Stats   any           `json:"stats,omitempty"`

	ErrorType string `json:"error_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResponseSender sends responses to the connected client.
type ResponseSender interface {
	Send(Response)
}

// Receiver receives a request and returns its size in bytes.
type Receiver func() (Request, int, error)

// Sender sends a response and returns its size in bytes.
type Sender func(Response) (int, error)

// Receive reads a request from the given connection.
func Receive(conn *websocket.Conn) (Request, int, error) {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return Request{}, 0, err
	}

	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return Request{}, len(b), errors.New("decoding message failed").
			WithType(ErrTypeMsgInvalid).
			Wrap(err)
	}
	return req, len(b), nil
}

// Send writes a response to the given connection.
func Send(conn *websocket.Conn, res Response) (int, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithTag("msg_type", res.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}
