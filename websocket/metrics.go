package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{publicEndpointLabel})

	wsMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_msgs",
		Help: "The number of WebSocket messages, by direction.",
	}, []string{publicEndpointLabel, "direction", msgTypeLabel})

	wsBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_bytes",
		Help: "The number of WebSocket bytes, by direction.",
	}, []string{publicEndpointLabel, "direction", msgTypeLabel})

	wsErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_errors",
		Help: "The errors that occurred while exchanging WebSocket messages, by direction.",
	}, []string{publicEndpointLabel, "direction", errTypeLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket message.",
	}, []string{publicEndpointLabel, msgTypeLabel})

	wsQuerySize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_query_size",
		Help:    "The number of points in WebSocket queries.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 6),
	}, []string{publicEndpointLabel})
)

const (
	directionIn  = "in"
	directionOut = "out"
)

// HandlerWithMetrics wraps h to collect connection and message metrics
// labelled with publicEndpoint.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	endpoint := prometheus.Labels{publicEndpointLabel: publicEndpoint}

	return &handlerWithMetrics{
		Handler:   h,
		connected: wsConnectedClients.With(endpoint),
		msgs:      wsMsgs.MustCurryWith(endpoint),
		bytes:     wsBytes.MustCurryWith(endpoint),
		errs:      wsErrors.MustCurryWith(endpoint),
		latency:   wsMsgLatency.MustCurryWith(endpoint),
		querySize: wsQuerySize.With(endpoint),
	}
}

type handlerWithMetrics struct {
	Handler

	connected prometheus.Gauge
	msgs      *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	errs      *prometheus.CounterVec
	latency   prometheus.ObserverVec
	querySize prometheus.Observer
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	h.connected.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	h.connected.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, req Request) error {
	defer h.observeLatency(req.Type, time.Now())
	return h.Handler.HandlePing(ctx, respond, req)
}

func (h *handlerWithMetrics) HandleQuery(ctx context.Context, respond ResponseSender, req Request) error {
	defer h.observeLatency(req.Type, time.Now())

	h.querySize.Observe(float64(len(req.Points)))
	return h.Handler.HandleQuery(ctx, respond, req)
}

func (h *handlerWithMetrics) HandleAnchor(ctx context.Context, respond ResponseSender, req Request) error {
	defer h.observeLatency(req.Type, time.Now())
	return h.Handler.HandleAnchor(ctx, respond, req)
}

func (h *handlerWithMetrics) SendStats(ctx context.Context, respond ResponseSender) error {
	defer h.observeLatency(MsgTypeStats, time.Now())
	return h.Handler.SendStats(ctx, respond)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Request, int, error) {
		req, n, err := receive()
		h.count(directionIn, req.Type, n, err)
		return req, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(res Response) (int, error) {
		n, err := send(res)
		h.count(directionOut, res.Type, n, err)
		return n, err
	}
}

// count records a message exchanged in the given direction. Messages that
// failed are counted as errors, along with the bytes that went through.
func (h *handlerWithMetrics) count(direction string, msgType MsgType, n int, err error) {
	if err != nil {
		h.errs.WithLabelValues(direction, errors.Type(err)).Inc()
	} else {
		h.msgs.WithLabelValues(direction, string(msgType)).Inc()
	}

	if n != 0 {
		h.bytes.WithLabelValues(direction, string(msgType)).Add(float64(n))
	}
}

func (h *handlerWithMetrics) observeLatency(msgType MsgType, start time.Time) {
	h.latency.WithLabelValues(string(msgType)).Observe(time.Since(start).Seconds())
}
