package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/ril"
)

type fakeRequests struct {
	kind string
	blob string
	code ril.Code
	err  error
}

func (f *fakeRequests) Submit(_ context.Context, kind string, blob []byte) (string, error) {
	f.kind, f.blob = kind, string(blob)
	return "tok-1", f.err
}

func (f *fakeRequests) Call(_ context.Context, kind string, blob []byte) (ril.Completion, error) {
	f.kind, f.blob = kind, string(blob)
	return ril.Completion{Token: "tok-2", Kind: kind, Code: f.code, Blob: []byte(`{"rssi":20}`)}, f.err
}

func (f *fakeRequests) Kinds() []string { return []string{"imei"} }

func newTestServer(reqs *fakeRequests) *Server {
	return &Server{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Requests: reqs,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "metrics")
		}),
	}
}

func TestServerRequest(t *testing.T) {
	tests := []struct {
		name   string
		code   ril.Code
		status int
	}{
		{"success", ril.CodeSuccess, http.StatusOK},
		{"invalid", ril.CodeInvalidArguments, http.StatusBadRequest},
		{"unsupported", ril.CodeRequestNotSupported, http.StatusNotImplemented},
		{"sim", ril.CodeSIMNotReady, http.StatusServiceUnavailable},
		{"failure", ril.CodeGenericFailure, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs := &fakeRequests{code: tt.code}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/requests/signal-strength", strings.NewReader(`{}`))
			newTestServer(reqs).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "signal-strength", reqs.kind)
			assert.Equal(t, "{}", reqs.blob)

			var c ril.Completion
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
			assert.Equal(t, "tok-2", c.Token)
			assert.JSONEq(t, `{"rssi":20}`, string(c.Blob))
		})
	}
}

func TestServerAsyncRequest(t *testing.T) {
	reqs := &fakeRequests{}
	rec := httptest.NewRecorder()
	newTestServer(reqs).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/requests/imei?async=true", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"token":"tok-1"}`, rec.Body.String())

	reqs.err = adapter.ErrNotSupported
	rec = httptest.NewRecorder()
	newTestServer(reqs).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/requests/dial?async=true", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(&fakeRequests{})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests", nil))
	assert.JSONEq(t, `["imei"]`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/imei", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
