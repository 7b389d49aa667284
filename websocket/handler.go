package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a ground height client handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, req Request) error

	// Handles a ground height query.
	HandleQuery(ctx context.Context, respond ResponseSender, req Request) error

	// Handles an anchor update.
	HandleAnchor(ctx context.Context, respond ResponseSender, req Request) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Sends the ground service stats to the client.
	SendStats(ctx context.Context, respond ResponseSender) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The interval between each stats message sent to the connected client.
	StatsInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Get ClientID
	GetClientID() string
}

// Handle handles the given connection until it is closed or ctx is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The ground height handler.
	Handler Handler

	sendChan       chan Response
	sender         Sender
	receiveChan    chan Request
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Response, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Request, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	var statsTick <-chan time.Time
	if interval := h.Handler.StatsInterval(); interval > 0 {
		statsTicker := time.NewTicker(interval)
		defer statsTicker.Stop()
		statsTick = statsTicker.C
	}

	var responder = responseSender{
		send: h.send,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", h.Handler.IdleTimeout()))

		case <-statsTick:
			if err := h.Handler.SendStats(ctx, responder); err != nil {
				h.disconnect(errors.New("sending stats failed").Wrap(err))
			}

		case req := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleRequest(ctx, req, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(res Response) {
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}

	select {
	case h.sendChan <- res:
	default:
		logs.WithClientID(h.Handler.GetClientID()).
			WithTag("msg_type", res.Type).
			Warn(errors.New("send queue is full"))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-h.sendChan:
			if _, err := h.sender(res); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			req, _, err := h.receiver()
			if errors.IsType(err, ErrTypeMsgInvalid) {
				h.send(errorResponse(req, err))
				continue
			}
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case <-ctx.Done():
				return
			case h.receiveChan <- req:
			}
		}
	}
}

// handleRequest dispatches req to the handler. Invalid requests are answered
// with an error response and do not close the connection.
func (h *handler) handleRequest(ctx context.Context, req Request, responder ResponseSender) error {
	var err error

	switch req.Type {
	case MsgTypePing:
		err = h.Handler.HandlePing(ctx, responder, req)

	case MsgTypeQuery:
		err = h.Handler.HandleQuery(ctx, responder, req)

	case MsgTypeAnchor:
		err = h.Handler.HandleAnchor(ctx, responder, req)

	default:
		err = errors.New("unknown message type").
			WithType(ErrTypeMsgUnknown).
			WithTag("msg_type", req.Type)
	}

	if errors.IsType(err, ErrTypeMsgInvalid) || errors.IsType(err, ErrTypeMsgUnknown) {
		responder.Send(errorResponse(req, err))
		return nil
	}
	return err
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

func errorResponse(req Request, err error) Response {
	return Response{
		Type:      MsgTypeError,
		RequestID: req.RequestID,
		ErrorType: errors.Type(err),
		Error:     err.Error(),
	}
}

type responseSender struct {
	send func(Response)
}

func (r responseSender) Send(res Response) {
	r.send(res)
}
