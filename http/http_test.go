package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReadyCheck(t *testing.T) {
	ready := false
	h := HandleReadyCheck(func() bool { return ready })

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready = true
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "v1.2.3", w.Body.String())
}

func TestHandleWithCORS(t *testing.T) {
	var called bool
	h := HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("preflight", func(t *testing.T) {
		called = false

		r := httptest.NewRequest(http.MethodOptions, "/height", nil)
		r.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		require.False(t, called)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
		require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("request", func(t *testing.T) {
		called = false

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/height", nil))

		require.True(t, called)
		require.Equal(t, http.StatusTeapot, w.Code)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestGetAPIKeyFromHTTPRequest(t *testing.T) {
	tests := []struct {
		scenario string
		header   string
		url      string
		expected string
	}{
		{
			scenario: "bearer token",
			header:   "Bearer secret",
			url:      "/height",
			expected: "secret",
		},
		{
			scenario: "raw header",
			header:   "secret",
			url:      "/height",
			expected: "secret",
		},
		{
			scenario: "query parameter",
			url:      "/ws?token=secret",
			expected: "secret",
		},
		{
			scenario: "header wins",
			header:   "Bearer a",
			url:      "/ws?token=b",
			expected: "a",
		},
		{
			scenario: "none",
			url:      "/height",
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, test.url, nil)
			if test.header != "" {
				r.Header.Set("Authorization", test.header)
			}
			require.Equal(t, test.expected, GetAPIKeyFromHTTPRequest(r))
		})
	}
}

func TestVerifyAPIKeyHandler(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		scenario string
		apiKey   string
		token    string
		status   int
	}{
		{
			scenario: "no key configured",
			status:   http.StatusOK,
		},
		{
			scenario: "valid key",
			apiKey:   "secret",
			token:    "secret",
			status:   http.StatusOK,
		},
		{
			scenario: "invalid key",
			apiKey:   "secret",
			token:    "guess",
			status:   http.StatusUnauthorized,
		},
		{
			scenario: "missing key",
			apiKey:   "secret",
			status:   http.StatusUnauthorized,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/height", nil)
			if test.token != "" {
				r.Header.Set("Authorization", "Bearer "+test.token)
			}

			w := httptest.NewRecorder()
			VerifyAPIKeyHandler(test.apiKey, next).ServeHTTP(w, r)
			require.Equal(t, test.status, w.Code)
		})
	}
}

func TestVerifyAPIKey(t *testing.T) {
	handshake := VerifyAPIKey("secret")

	r := httptest.NewRequest(http.MethodGet, "/ws?token=secret", nil)
	require.NoError(t, handshake(nil, r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil)
	require.Error(t, handshake(nil, r))
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/height", MetricsPathFormatter(http.StatusOK, "/height"))
	require.Equal(t, "/height", MetricsPathFormatter(http.StatusInternalServerError, "/height"))

	for _, code := range []int{301, 400, 401, 404, 405} {
		require.Empty(t, MetricsPathFormatter(code, "/random"))
	}
}
