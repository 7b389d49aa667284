// Package smoketest checks that a ground height endpoint answers pings and
// queries over its WebSocket.
package smoketest

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	dhttp "github.com/aukilabs/dagaz/http"
	dwebsocket "github.com/aukilabs/dagaz/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"

	defaultTimeout = time.Second * 10
	maxTimeout     = time.Minute
)

// Status is the outcome of a smoke test.
type Status string

// Request is a smoke test request.
type Request struct {
	// The base endpoint of the tested server. Its WebSocket is expected at
	// /ws.
	Endpoint string `json:"endpoint"`

	// The api key presented to the tested server.
	Token string `json:"token,omitempty"`

	Timeout time.Duration `json:"timeout,omitempty"`

	// The point queried once the ping succeeded.
	Point mgl64.Vec3 `json:"point"`
}

// Result is the result of a smoke test.
type Result struct {
	FromEndpoint    string      `json:"from_endpoint"`
	ToEndpoint      string      `json:"to_endpoint"`
	Status          Status      `json:"status"`
	LatencyMilliSec float64     `json:"latency_ms"`
	Resolved        bool        `json:"resolved"`
	Point           *mgl64.Vec3 `json:"point,omitempty"`
	Error           string      `json:"error,omitempty"`
}

type Options struct {
	// The endpoint of the server running the smoke tests.
	Endpoint  string
	UserAgent string

	// Called with the result of each smoke test.
	SendResult func(context.Context, Result) error
}

// HandleSmokeTest starts a smoke test in the background for each request and
// answers 202 right away. Results are reported with opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			dhttp.BadRequest(w, errors.New("decoding smoke test request failed").
				WithType(dhttp.ErrTypeBadRequest).
				Wrap(err))
			return
		}

		if _, err := url.ParseRequestURI(req.Endpoint); err != nil {
			dhttp.BadRequest(w, errors.New("invalid smoke test endpoint").
				WithType(dhttp.ErrTypeBadRequest).
				WithTag("endpoint", req.Endpoint).
				Wrap(err))
			return
		}

		go func() {
			res, err := Run(ctx, opts, req)
			if err != nil {
				logs.WithTag("to_endpoint", req.Endpoint).Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusAccepted)
	}
}

// Run connects to the WebSocket of req.Endpoint, measures a ping round trip
// and queries req.Point. The returned result is filled even when an error
// occurs.
func Run(ctx context.Context, opts Options, req Request) (Result, error) {
	res := Result{
		FromEndpoint: opts.Endpoint,
		ToEndpoint:   req.Endpoint,
		Status:       StatusFailed,
	}

	if err := run(ctx, opts, req, &res); err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Status = StatusSuccess
	return res, nil
}

func run(ctx context.Context, opts Options, req Request, res *Result) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timeout = min(timeout, maxTimeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config, err := newConfig(opts, req)
	if err != nil {
		return err
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return errors.New("dialing endpoint failed").
			WithTag("url", config.Location.String()).
			Wrap(err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	start := time.Now()
	if err := send(conn, dwebsocket.Request{
		Type:      dwebsocket.MsgTypePing,
		RequestID: 1,
	}); err != nil {
		return err
	}
	if _, err := receive(conn, dwebsocket.MsgTypePingResponse, 1); err != nil {
		return err
	}
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000

	if err := send(conn, dwebsocket.Request{
		Type:      dwebsocket.MsgTypeQuery,
		RequestID: 2,
		Points:    []mgl64.Vec3{req.Point},
	}); err != nil {
		return err
	}
	queryRes, err := receive(conn, dwebsocket.MsgTypeQueryResponse, 2)
	if err != nil {
		return err
	}
	if len(queryRes.Results) != 1 {
		return errors.New("unexpected query results").
			WithTag("count", len(queryRes.Results))
	}

	res.Resolved = queryRes.Results[0].OK
	if res.Resolved {
		res.Point = &queryRes.Results[0].Point
	}
	return nil
}

func newConfig(opts Options, req Request) (*websocket.Config, error) {
	u, err := url.Parse(req.Endpoint)
	if err != nil {
		return nil, errors.New("invalid endpoint").
			WithTag("endpoint", req.Endpoint).
			Wrap(err)
	}

	origin := *u
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	config, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, errors.New("creating websocket config failed").
			WithTag("url", u.String()).
			Wrap(err)
	}

	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}
	if req.Token != "" {
		config.Header.Set("Authorization", "Bearer "+req.Token)
	}
	return config, nil
}

func send(conn *websocket.Conn, req dwebsocket.Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return errors.New("encoding request failed").Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return errors.New("sending request failed").
			WithTag("msg_type", req.Type).
			Wrap(err)
	}
	return nil
}

// receive returns the next response of the given type and request id,
// skipping the other ones.
func receive(conn *websocket.Conn, msgType dwebsocket.MsgType, requestID uint32) (dwebsocket.Response, error) {
	for {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return dwebsocket.Response{}, errors.New("receiving response failed").
				WithTag("msg_type", msgType).
				Wrap(err)
		}

		var res dwebsocket.Response
		if err := json.Unmarshal(b, &res); err != nil {
			return dwebsocket.Response{}, errors.New("decoding response failed").Wrap(err)
		}

		switch {
		case res.Type == dwebsocket.MsgTypeError && res.RequestID == requestID:
			return res, errors.New("endpoint answered an error").
				WithType(res.ErrorType).
				WithTag("error", res.Error)

		case res.Type == msgType && res.RequestID == requestID:
			return res, nil
		}
	}
}
