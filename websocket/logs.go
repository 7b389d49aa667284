package websocket

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

// HandlerWithLogs wraps h to log connections and to periodically log a
// summary of the received messages and of the queried points.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	if summaryInterval <= 0 {
		summaryInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		summary:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	summaryInterval    time.Duration
	closeSummaryWorker func()
	summaryMutex       sync.Mutex
	summary            map[string]int
}

const (
	summaryQueriedPoints    = "queried_points"
	summaryUnresolvedPoints = "unresolved_points"
)

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	req := conn.Request()

	logs.WithClientID(h.GetClientID()).
		WithTag("http_headers", struct {
			UserAgent     string `json:"user_agent,omitempty"`
			XForwardedFor string `json:"x_forwarded_for,omitempty"`
		}{
			UserAgent:     req.UserAgent(),
			XForwardedFor: req.Header.Get("X-Forwarded-For"),
		}).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleAnchor(ctx context.Context, respond ResponseSender, req Request) error {
	if err := h.Handler.HandleAnchor(ctx, respond, req); err != nil {
		return err
	}

	entry := logs.WithClientID(h.GetClientID())
	if req.Anchor != nil {
		entry = entry.WithTag("anchor", *req.Anchor)
	}
	entry.Debug("anchor updated")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithClientID(h.GetClientID())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Request, int, error) {
		req, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag("msg_type", req.Type).
				Debug("message received")
			h.addToSummary(string(req.Type), 1)
			h.addToSummary(summaryQueriedPoints, len(req.Points))
		}
		return req, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(res Response) (int, error) {
		n, err := sender(res)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithClientID(h.GetClientID()).
				WithTag("msg_type", res.Type).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithClientID(h.GetClientID()).
				WithTag("msg_type", res.Type).
				Debug("message sent")
			h.addToSummary(summaryUnresolvedPoints, countUnresolved(res.Results))
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

// addToSummary adds n to the summary entry named name. Zeros are ignored so
// that idle connections do not log empty summaries.
func (h *handlerWithLogs) addToSummary(name string, n int) {
	if n == 0 {
		return
	}

	h.summaryMutex.Lock()
	defer h.summaryMutex.Unlock()

	h.summary[name] += n
}

func (h *handlerWithLogs) logSummary() {
	h.summaryMutex.Lock()
	defer h.summaryMutex.Unlock()

	if len(h.summary) == 0 {
		return
	}

	entry := logs.
		WithClientID(h.GetClientID()).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.summary {
		entry = entry.WithTag(k, v)
	}
	clear(h.summary)

	entry.Info("connection summary")
}

func countUnresolved(results []QueryResult) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}
