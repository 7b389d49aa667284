package websocket

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/dagaz/ground"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const (
	// HeaderClientID is the request header identifying a client.
	HeaderClientID = "X-Client-ID"

	defaultMaxQueryPoints = 1024
	defaultIdleTimeout    = time.Minute * 5
)

// QueryService answers ground height queries.
type QueryService interface {
	Query(point mgl64.Vec3, maxVerticalDelta float64) (mgl64.Vec3, bool)
	Stats() ground.Stats
}

// AnchorSetter updates the anchor of a ground service.
type AnchorSetter interface {
	Set(mgl64.Vec3)
	Clear()
}

// GroundHandler answers the ground height queries of a connected client.
type GroundHandler struct {
	// The service answering queries.
	Service QueryService

	// The anchor updated by anchor messages. Anchor messages are rejected
	// when nil.
	Anchor AnchorSetter

	// The vertical delta used by queries that do not specify one.
	DefaultMaxVerticalDelta float64

	// The maximum number of points in a query. Defaults to 1024.
	MaxQueryPoints int

	// The interval between each stats message sent to the connected client.
	// Zero disables stats messages.
	ClientStatsInterval time.Duration

	// The time a client is idle before being disconnected. Defaults to 5
	// minutes.
	ClientIdleTimeout time.Duration

	conn     *websocket.Conn
	clientID string
}

func (h *GroundHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *GroundHandler) HandlePing(ctx context.Context, respond ResponseSender, req Request) error {
	respond.Send(Response{
		Type:      MsgTypePingResponse,
		RequestID: req.RequestID,
	})
	return nil
}

func (h *GroundHandler) HandleQuery(ctx context.Context, respond ResponseSender, req Request) error {
	maxPoints := h.MaxQueryPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxQueryPoints
	}
	if len(req.Points) > maxPoints {
		return errors.New("too many points").
			WithType(ErrTypeMsgInvalid).
			WithTag("count", len(req.Points)).
			WithTag("max", maxPoints)
	}

	delta := req.MaxVerticalDelta
	if delta == 0 {
		delta = h.DefaultMaxVerticalDelta
	}
	if delta < 0 || math.IsNaN(delta) {
		return errors.New("invalid max vertical delta").
			WithType(ErrTypeMsgInvalid).
			WithTag("max_vertical_delta", delta)
	}

	results := make([]QueryResult, len(req.Points))
	for i, p := range req.Points {
		point, ok := h.Service.Query(p, delta)
		results[i] = QueryResult{
			Point: point,
			OK:    ok,
		}
	}

	respond.Send(Response{
		Type:      MsgTypeQueryResponse,
		RequestID: req.RequestID,
		Results:   results,
	})
	return nil
}

func (h *GroundHandler) HandleAnchor(ctx context.Context, respond ResponseSender, req Request) error {
	if h.Anchor == nil {
		return errors.New("anchor updates are disabled").
			WithType(ErrTypeMsgInvalid)
	}

	if req.Anchor == nil {
		h.Anchor.Clear()
	} else {
		if !isFinite(*req.Anchor) {
			return errors.New("invalid anchor").
				WithType(ErrTypeMsgInvalid).
				WithTag("anchor", *req.Anchor)
		}
		h.Anchor.Set(*req.Anchor)
	}

	respond.Send(Response{
		Type:      MsgTypeAnchorResponse,
		RequestID: req.RequestID,
	})
	return nil
}

func (h *GroundHandler) HandleDisconnect(_ error) {
}

func (h *GroundHandler) SendStats(ctx context.Context, respond ResponseSender) error {
	respond.Send(Response{
		Type:  MsgTypeStats,
		Stats: h.Service.Stats(),
	})
	return nil
}

func (h *GroundHandler) Receiver() Receiver {
	return func() (Request, int, error) {
		return Receive(h.conn)
	}
}

func (h *GroundHandler) Sender() Sender {
	return func(res Response) (int, error) {
		return Send(h.conn, res)
	}
}

func (h *GroundHandler) Close() {
}

func (h *GroundHandler) StatsInterval() time.Duration {
	return h.ClientStatsInterval
}

func (h *GroundHandler) IdleTimeout() time.Duration {
	if h.ClientIdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return h.ClientIdleTimeout
}

func (h *GroundHandler) GetClientID() string {
	return h.clientID
}

func isFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
