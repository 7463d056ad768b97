package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"i4.energy/across/modemctl/ril"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxRequestBody = 64 << 10
	requestTimeout = 3 * time.Minute
)

// Requests is the part of the request service the server exposes.
type Requests interface {
	Submit(ctx context.Context, kind string, blob []byte) (string, error)
	Call(ctx context.Context, kind string, blob []byte) (ril.Completion, error)
	Kinds() []string
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger        *slog.Logger
	Requests      Requests
	Notifications http.Handler
	Metrics       http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /requests/{kind}", s.handleRequest)
	mux.HandleFunc("GET /requests", s.handleKinds)
	if s.Notifications != nil {
		mux.Handle("GET /notifications", s.Notifications)
	}
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Debug("write response", "error", err)
	}
}

// handleRequest runs a request. With ?async=true it returns the token at
// once and the completion is delivered to the notification stream;
// otherwise it waits for the completion.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.sendError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		type Accepted struct {
			Token string `json:"token"`
		}
		token, err := s.Requests.Submit(r.Context(), kind, blob)
		if err != nil {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.sendJSON(w, Accepted{Token: token}, http.StatusAccepted)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	c, err := s.Requests.Call(ctx, kind, blob)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.sendError(w, "request timed out", http.StatusGatewayTimeout)
			return
		}
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.Logger.Info("request completed", "kind", kind, "token", c.Token, "code", c.Code)
	s.sendJSON(w, c, statusOf(c.Code))
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Requests.Kinds(), http.StatusOK)
}

func statusOf(code ril.Code) int {
	switch code {
	case ril.CodeSuccess:
		return http.StatusOK
	case ril.CodeInvalidArguments:
		return http.StatusBadRequest
	case ril.CodeRequestNotSupported:
		return http.StatusNotImplemented
	case ril.CodeRadioNotAvailable, ril.CodeSIMNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
