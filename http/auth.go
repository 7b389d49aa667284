package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnauthorized = "unauthorized"

	headerClientID = "X-Client-ID"
)

// GetAPIKeyFromHTTPRequest returns the bearer token of the request
// Authorization header, or the token query parameter when there is no such
// header.
func GetAPIKeyFromHTTPRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func verifyAPIKey(apiKey string, r *http.Request) error {
	if apiKey == "" {
		return nil
	}

	token := GetAPIKeyFromHTTPRequest(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
		return errors.New("invalid api key").
			WithType(ErrTypeUnauthorized).
			WithTag("path", r.URL.Path).
			WithTag("remote_addr", r.RemoteAddr)
	}
	return nil
}

// VerifyAPIKey returns a websocket handshake rejecting connections that do
// not present the given api key. An empty api key accepts every connection.
func VerifyAPIKey(apiKey string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyAPIKey(apiKey, r); err != nil {
			logs.WithClientID(r.Header.Get(headerClientID)).Error(err)
			return err
		}

		return nil
	}
}

// VerifyAPIKeyHandler answers 401 to requests that do not present the given
// api key. An empty api key accepts every request.
func VerifyAPIKeyHandler(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifyAPIKey(apiKey, r); err != nil {
			logs.WithClientID(r.Header.Get(headerClientID)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
