// Package ril is the request boundary of the daemon. Clients submit a
// request kind with a JSON blob and receive exactly one completion per
// request token; unsolicited modem events fan out to notification sinks.
package ril

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/datacall"
	"i4.energy/across/modemctl/modem"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrServiceClosed = errors.New("ril: service closed")

// Code is the result code of a completion.
type Code string

const (
	CodeSuccess             Code = "success"
	CodeGenericFailure      Code = "generic-failure"
	CodeRadioNotAvailable   Code = "radio-not-available"
	CodeRequestNotSupported Code = "request-not-supported"
	CodeInvalidArguments    Code = "invalid-arguments"
	CodeSIMNotReady         Code = "sim-not-ready"
)

// Completion answers one submitted request.
type Completion struct {
	Token string              `json:"token"`
	Kind  string              `json:"kind"`
	Code  Code                `json:"code"`
	Error string              `json:"error,omitempty"`
	Blob  jsoniter.RawMessage `json:"blob,omitempty"`
}

// Notification is an unsolicited event forwarded to clients.
type Notification struct {
	Kind    string              `json:"kind"`
	Channel int                 `json:"channel"`
	Session int                 `json:"session,omitempty"`
	Blob    jsoniter.RawMessage `json:"blob,omitempty"`
}

// Sink receives completions and notifications. Sinks are called from
// request and dispatcher goroutines and must not block for long.
type Sink interface {
	Completion(ctx context.Context, c Completion) error
	Notification(ctx context.Context, n Notification) error
}

// Radio is the part of the modem requests are sent to.
type Radio interface {
	Control() *modem.Channel
	SIMReady() bool
}

// DataCalls is the session manager behind the data-call kinds.
type DataCalls interface {
	Setup(ctx context.Context, req datacall.SetupRequest) (datacall.Context, error)
	Teardown(ctx context.Context, cid int) error
	List() []datacall.Context
	LastFailCause() datacall.FailCause
}

type Config struct {
	Radio     Radio
	Adapter   *adapter.Adapter
	DataCalls DataCalls
	MTU       int
	Sinks     []Sink
	Logger    *slog.Logger
}

// Service runs submitted requests. Every request runs on its own
// goroutine; requests for the same channel are serialized by the channel's
// queue.
type Service struct {
	radio   Radio
	adapter *adapter.Adapter
	calls   DataCalls
	mtu     int
	logger  *slog.Logger

	mu      sync.Mutex
	sinks   []Sink
	waiters map[string]chan Completion
	closed  bool
	wg      sync.WaitGroup
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Radio == nil || cfg.Adapter == nil || cfg.DataCalls == nil {
		return nil, errors.New("ril: radio, adapter and data calls are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		radio:   cfg.Radio,
		adapter: cfg.Adapter,
		calls:   cfg.DataCalls,
		mtu:     cfg.MTU,
		logger:  logger.With("component", "ril"),
		sinks:   cfg.Sinks,
		waiters: make(map[string]chan Completion),
	}, nil
}

// AddSink registers another receiver.
func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Kinds lists the request kinds the service accepts on this modem.
func (s *Service) Kinds() []string {
	var out []string
	for _, k := range requestKinds() {
		if h, ok := handlers[k]; ok && (h.adapterKind == "" || s.adapter.Supports(h.adapterKind)) {
			out = append(out, k)
		}
	}
	return out
}

// Submit accepts a request and returns its token. The outcome is delivered
// later as a Completion. A request rejected up front is completed at once
// and its error is returned together with the token.
func (s *Service) Submit(ctx context.Context, kind string, blob []byte) (string, error) {
	return s.submit(ctx, kind, blob, nil)
}

// Call submits a request and waits for its completion.
func (s *Service) Call(ctx context.Context, kind string, blob []byte) (Completion, error) {
	wait := make(chan Completion, 1)
	token, _ := s.submit(ctx, kind, blob, wait)
	select {
	case c := <-wait:
		return c, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waiters, token)
		s.mu.Unlock()
		return Completion{}, ctx.Err()
	}
}

func (s *Service) submit(ctx context.Context, kind string, blob []byte, wait chan Completion) (string, error) {
	token := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if wait != nil {
			wait <- Completion{Token: token, Kind: kind, Code: CodeRadioNotAvailable, Error: ErrServiceClosed.Error()}
		}
		return token, ErrServiceClosed
	}
	if wait != nil {
		s.waiters[token] = wait
	}
	s.wg.Add(1)
	s.mu.Unlock()

	h, ok := handlers[kind]
	if !ok || (h.adapterKind != "" && !s.adapter.Supports(h.adapterKind)) {
		err := fmt.Errorf("%w: %s", adapter.ErrNotSupported, kind)
		s.finish(ctx, Completion{Token: token, Kind: kind, Code: CodeRequestNotSupported, Error: err.Error()})
		return token, err
	}
	params, err := h.decode(kind, blob)
	if err != nil {
		s.finish(ctx, Completion{Token: token, Kind: kind, Code: CodeInvalidArguments, Error: err.Error()})
		return token, err
	}
	if h.needsSIM && !s.radio.SIMReady() {
		s.finish(ctx, Completion{Token: token, Kind: kind, Code: CodeSIMNotReady})
		return token, nil
	}

	s.logger.Debug("request accepted", "kind", kind, "token", token)
	go func() {
		rctx := context.WithoutCancel(ctx)
		result, err := h.run(rctx, s, params)
		c := Completion{Token: token, Kind: kind, Code: codeOf(err)}
		if err != nil {
			c.Error = err.Error()
			s.logger.Info("request failed", "kind", kind, "token", token, "error", err)
		}
		if result != nil {
			if c.Blob, err = json.Marshal(result); err != nil {
				c.Code, c.Error, c.Blob = CodeGenericFailure, err.Error(), nil
			}
		}
		s.finish(rctx, c)
	}()
	return token, nil
}

// finish delivers c to its waiter and every sink.
func (s *Service) finish(ctx context.Context, c Completion) {
	defer s.wg.Done()

	s.mu.Lock()
	wait := s.waiters[c.Token]
	delete(s.waiters, c.Token)
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	if wait != nil {
		wait <- c
	}
	for _, sink := range sinks {
		if err := sink.Completion(ctx, c); err != nil {
			s.logger.Warn("completion sink failed", "kind", c.Kind, "token", c.Token, "error", err)
		}
	}
}

// Notify forwards an unsolicited modem event to every sink.
func (s *Service) Notify(n modem.Notification) {
	out := Notification{Kind: n.Kind, Channel: int(n.Channel), Session: n.Session}
	payload := n.Payload
	if list, ok := payload.([]datacall.Context); ok {
		calls := make([]DataCall, 0, len(list))
		for _, c := range list {
			calls = append(calls, s.dataCall(c))
		}
		payload = calls
	}
	if payload != nil {
		blob, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("dropping unencodable notification", "kind", n.Kind, "error", err)
			return
		}
		out.Blob = blob
	}

	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	ctx := context.Background()
	for _, sink := range sinks {
		if err := sink.Notification(ctx, out); err != nil {
			s.logger.Warn("notification sink failed", "kind", n.Kind, "error", err)
		}
	}
}

// Close rejects new requests and waits for running ones.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// codeOf classifies a request error.
func codeOf(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, adapter.ErrNotSupported):
		return CodeRequestNotSupported
	case errors.Is(err, adapter.ErrInvalidParams):
		return CodeInvalidArguments
	case errors.Is(err, modem.ErrClosed), errors.Is(err, modem.ErrNotRunning),
		errors.Is(err, modem.ErrAlreadyClosed), modem.ClassOf(err) == modem.ClassTransport:
		return CodeRadioNotAvailable
	default:
		return CodeGenericFailure
	}
}
