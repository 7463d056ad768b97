package ril

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/datacall"
)

// Data-call request kinds. Every other kind is an adapter kind passed
// through unchanged.
const (
	KindSetupDataCall      = "setup-data-call"
	KindDeactivateDataCall = "deactivate-data-call"
	KindDataCallList       = "data-call-list"
	KindLastDataFailCause  = "last-data-call-fail-cause"
)

type handler struct {
	// adapterKind is the operation the request needs, empty when it is
	// served without the adapter.
	adapterKind adapter.Kind
	needsSIM    bool
	decode      func(kind string, blob []byte) (any, error)
	run         func(ctx context.Context, s *Service, params any) (any, error)
}

var handlers = map[string]handler{
	KindSetupDataCall: {
		adapterKind: adapter.KindDefineContext,
		needsSIM:    true,
		decode:      decodeInto[setupRequest],
		run:         runSetup,
	},
	KindDeactivateDataCall: {
		decode: decodeInto[deactivateRequest],
		run:    runDeactivate,
	},
	KindDataCallList: {
		decode: decodeNone,
		run: func(_ context.Context, s *Service, _ any) (any, error) {
			out := []DataCall{}
			for _, c := range s.calls.List() {
				out = append(out, s.dataCall(c))
			}
			return out, nil
		},
	},
	KindLastDataFailCause: {
		decode: decodeNone,
		run: func(_ context.Context, s *Service, _ any) (any, error) {
			return int(s.calls.LastFailCause()), nil
		},
	},

	string(adapter.KindSignalStrength):      passthrough(adapter.KindSignalStrength),
	string(adapter.KindRegistration):        passthrough(adapter.KindRegistration),
	string(adapter.KindGPRSRegistration):    passthrough(adapter.KindGPRSRegistration),
	string(adapter.KindOperator):            passthrough(adapter.KindOperator),
	string(adapter.KindIMEI):                passthrough(adapter.KindIMEI),
	string(adapter.KindBasebandVersion):     passthrough(adapter.KindBasebandVersion),
	string(adapter.KindSIMStatus):           passthrough(adapter.KindSIMStatus),
	string(adapter.KindNeighboringCells):    passthrough(adapter.KindNeighboringCells),
	string(adapter.KindGetPreferredNetwork): passthrough(adapter.KindGetPreferredNetwork),

	string(adapter.KindSIMIO): {
		adapterKind: adapter.KindSIMIO,
		needsSIM:    true,
		decode:      decodeAs(func(r simIORequest) any { return r.params() }),
		run:         runAdapter(adapter.KindSIMIO),
	},
	string(adapter.KindRadioPower): {
		adapterKind: adapter.KindRadioPower,
		decode:      decodeAs(func(r radioPowerRequest) any { return adapter.RadioPowerParams{On: r.On} }),
		run:         runAdapter(adapter.KindRadioPower),
	},
	string(adapter.KindSendSMS): {
		adapterKind: adapter.KindSendSMS,
		needsSIM:    true,
		decode:      decodeAs(func(r smsRequest) any { return adapter.SMSParams{SMSC: r.SMSC, PDU: r.PDU} }),
		run:         runAdapter(adapter.KindSendSMS),
	},
	string(adapter.KindSetPreferredNetwork): {
		adapterKind: adapter.KindSetPreferredNetwork,
		decode: decodeAs(func(r networkTypeRequest) any {
			return adapter.NetworkTypeParams{Type: adapter.NetworkType(r.Type)}
		}),
		run: runAdapter(adapter.KindSetPreferredNetwork),
	},
}

func requestKinds() []string {
	out := make([]string, 0, len(handlers))
	for k := range handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// passthrough serves a parameterless adapter kind.
func passthrough(k adapter.Kind) handler {
	return handler{
		adapterKind: k,
		decode:      decodeNone,
		run:         runAdapter(k),
	}
}

func runAdapter(k adapter.Kind) func(context.Context, *Service, any) (any, error) {
	return func(ctx context.Context, s *Service, params any) (any, error) {
		cmd, _, err := s.adapter.Build(k, params)
		if err != nil {
			return nil, err
		}
		if cmd == nil {
			return nil, nil
		}
		rsp, err := s.radio.Control().Exec(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return rsp.Payload, nil
	}
}

func runSetup(ctx context.Context, s *Service, params any) (any, error) {
	req := params.(setupRequest)
	c, err := s.calls.Setup(ctx, req.request())
	var se *datacall.SetupError
	if errors.As(err, &se) {
		// A rejected activation is a successful request reporting the
		// fail cause.
		return DataCall{Status: int(se.Cause), CID: se.CID}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.dataCall(c), nil
}

func runDeactivate(ctx context.Context, s *Service, params any) (any, error) {
	req := params.(deactivateRequest)
	return nil, s.calls.Teardown(ctx, req.CID)
}

// DataCall is the client view of a session.
type DataCall struct {
	Status    int      `json:"status"`
	CID       int      `json:"cid"`
	Active    bool     `json:"active"`
	Type      string   `json:"type,omitempty"`
	Interface string   `json:"ifname,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	DNSes     []string `json:"dnses,omitempty"`
	Gateways  []string `json:"gateways,omitempty"`
	MTU       int      `json:"mtu,omitempty"`
}

func (s *Service) dataCall(c datacall.Context) DataCall {
	out := DataCall{
		Status:    int(c.Cause),
		CID:       c.CID,
		Active:    c.State == datacall.StateActive,
		Type:      c.PDPType,
		Interface: c.Interface,
		MTU:       s.mtu,
	}
	if out.Type == "" {
		out.Type = adapter.PDPIPv4v6
	}
	if c.V4 != "" {
		out.Addresses = append(out.Addresses, c.V4+"/32")
	}
	if c.V6 != "" {
		out.Addresses = append(out.Addresses, c.V6+"/64")
	}
	out.DNSes = append(append(out.DNSes, c.DNS4...), c.DNS6...)
	if c.Gateway != "" {
		out.Gateways = append(out.Gateways, c.Gateway)
	}
	return out
}

type setupRequest struct {
	APN       string `json:"apn"`
	PDPType   string `json:"pdp_type"`
	Auth      int    `json:"auth"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Emergency bool   `json:"emergency"`
}

func (r setupRequest) request() datacall.SetupRequest {
	return datacall.SetupRequest{
		APN:       r.APN,
		PDPType:   r.PDPType,
		Auth:      adapter.Auth(r.Auth),
		Username:  r.Username,
		Password:  r.Password,
		Emergency: r.Emergency,
	}
}

type deactivateRequest struct {
	CID int `json:"cid"`
}

type simIORequest struct {
	Command int    `json:"command"`
	FileID  int    `json:"fileid"`
	P1      int    `json:"p1"`
	P2      int    `json:"p2"`
	P3      int    `json:"p3"`
	Data    string `json:"data"`
}

func (r simIORequest) params() adapter.SIMIOParams {
	return adapter.SIMIOParams{Command: r.Command, FileID: r.FileID, P1: r.P1, P2: r.P2, P3: r.P3, Data: r.Data}
}

type radioPowerRequest struct {
	On bool `json:"on"`
}

type smsRequest struct {
	SMSC string `json:"smsc"`
	PDU  string `json:"pdu"`
}

type networkTypeRequest struct {
	Type string `json:"type"`
}

// decodeInto validates blob against the kind's schema and decodes it.
func decodeInto[T any](kind string, blob []byte) (any, error) {
	if err := validate(kind, blob); err != nil {
		return nil, err
	}
	var v T
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", adapter.ErrInvalidParams, err)
		}
	}
	return v, nil
}

func decodeAs[T any](conv func(T) any) func(string, []byte) (any, error) {
	return func(kind string, blob []byte) (any, error) {
		v, err := decodeInto[T](kind, blob)
		if err != nil {
			return nil, err
		}
		return conv(v.(T)), nil
	}
}

func decodeNone(kind string, blob []byte) (any, error) {
	return nil, validate(kind, blob)
}
