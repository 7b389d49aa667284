package http

import (
	"io"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"

	maxBodySize = 1 << 20
)

type errorResponse struct {
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// BadRequest answers a 400 with the given error.
func BadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Type:  errors.Type(err),
		Error: err.Error(),
	})
}

// InternalServerError logs the given error and answers a 500.
func InternalServerError(w http.ResponseWriter, err error) {
	logs.Error(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":"internal server error"}`))
}

func decodeBody(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.New("reading body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.New("decoding body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}
