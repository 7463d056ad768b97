// Package adapter maps canonical request kinds onto the AT dialect of one
// modem family.
//
// Each family is a variant tag with a parent. A variant declares only the
// operations it overrides; New resolves the chain root first so the most
// specific declaration of every kind wins.
package adapter

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"i4.energy/across/modemctl/modem"
)

var (
	ErrUnknownVariant = errors.New("adapter: unknown variant")
	ErrNotSupported   = errors.New("adapter: request not supported")
	ErrInvalidParams  = errors.New("adapter: invalid parameters")
)

// Kind names a canonical request.
type Kind string

const (
	KindDefineContext   Kind = "define-context"
	KindActivateContext Kind = "activate-context"
	KindQueryAddress    Kind = "query-address"
	KindQueryDNS        Kind = "query-dns"
	KindEnterData       Kind = "enter-data"
	KindDeactivate      Kind = "deactivate-context"
	KindLastFailCause   Kind = "last-fail-cause"

	KindConfigureRegistration Kind = "configure-registration"
	KindSignalStrength        Kind = "signal-strength"
	KindRegistration          Kind = "registration-state"
	KindGPRSRegistration      Kind = "gprs-registration-state"
	KindOperator              Kind = "operator"
	KindIMEI                  Kind = "imei"
	KindBasebandVersion       Kind = "baseband-version"
	KindSIMStatus             Kind = "sim-status"
	KindSIMIO                 Kind = "sim-io"
	KindRadioPower            Kind = "radio-power"
	KindSendSMS               Kind = "send-sms"
	KindSetPreferredNetwork   Kind = "set-preferred-network-type"
	KindGetPreferredNetwork   Kind = "get-preferred-network-type"
	KindNeighboringCells      Kind = "neighboring-cells"
)

// Route selects the channel a command is queued on.
type Route int

const (
	// RouteControl is the control channel.
	RouteControl Route = iota
	// RouteData is the data channel bound to the session.
	RouteData
)

// BuildFunc turns request parameters into a command carrying its parse
// routine. A nil command with a nil error means the variant has nothing to
// send for the request.
type BuildFunc func(params any) (*modem.Command, error)

// Operation is one resolved entry of the operation table.
type Operation struct {
	Build   BuildFunc
	Route   Route
	Timeout time.Duration
}

// Tag identifies a modem family.
type Tag string

const (
	Base    Tag = "base"
	INF6260 Tag = "inf6260"
	INF7x60 Tag = "inf7x60"
	INFN721 Tag = "infn721"
	SW8790  Tag = "sw8790"
	XMM6260 Tag = "xmm6260"
	XMM6360 Tag = "xmm6360"
	XMM7160 Tag = "xmm7160"
	XMM7260 Tag = "xmm7260"
	XMM7x60 Tag = "xmm7x60"
)

// Variant is a family's override set.
type Variant struct {
	Tag       Tag
	Parent    Tag
	Overrides map[Kind]Operation
}

var variants = map[Tag]Variant{}

func register(v Variant) {
	variants[v.Tag] = v
}

func init() {
	register(baseVariant())
	register(inf6260Variant())
	register(inf7x60Variant())
	register(infN721Variant())
	register(sw8790Variant())
	register(xmm6260Variant())
	register(xmm6360Variant())
	register(xmm7160Variant())
	register(xmm7260Variant())
	register(xmm7x60Variant())
}

// Tags lists the known variants.
func Tags() []Tag {
	out := make([]Tag, 0, len(variants))
	for t := range variants {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Adapter is the resolved operation table of one variant.
type Adapter struct {
	tag      Tag
	ops      map[Kind]Operation
	timeouts modem.TimeoutSource
}

// New resolves tag against its parent chain.
func New(tag Tag) (*Adapter, error) {
	var chain []Variant
	seen := map[Tag]bool{}
	for t := tag; t != ""; {
		v, ok := variants[t]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, t)
		}
		if seen[t] {
			return nil, fmt.Errorf("adapter: variant chain of %q loops at %q", tag, t)
		}
		seen[t] = true
		chain = append(chain, v)
		t = v.Parent
	}

	ops := make(map[Kind]Operation)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, op := range chain[i].Overrides {
			ops[k] = op
		}
	}
	return &Adapter{tag: tag, ops: ops}, nil
}

func (a *Adapter) Tag() Tag { return a.tag }

// WithTimeouts makes per-kind timeouts from src take precedence over the
// table defaults.
func (a *Adapter) WithTimeouts(src modem.TimeoutSource) *Adapter {
	a.timeouts = src
	return a
}

func (a *Adapter) Supports(k Kind) bool {
	_, ok := a.ops[k]
	return ok
}

// Kinds lists the supported kinds.
func (a *Adapter) Kinds() []Kind {
	out := make([]Kind, 0, len(a.ops))
	for k := range a.ops {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (a *Adapter) Operation(k Kind) (Operation, bool) {
	op, ok := a.ops[k]
	return op, ok
}

// Build creates the command for kind. The command may be nil, see BuildFunc.
func (a *Adapter) Build(k Kind, p any) (*modem.Command, Operation, error) {
	op, ok := a.ops[k]
	if !ok {
		return nil, op, fmt.Errorf("%w: %s on %s", ErrNotSupported, k, a.tag)
	}
	cmd, err := op.Build(p)
	if err != nil || cmd == nil {
		return nil, op, err
	}
	cmd.Kind = string(k)
	cmd.Timeout = op.Timeout
	if a.timeouts != nil {
		if d, ok := a.timeouts.Timeout(string(k)); ok {
			cmd.Timeout = d
		}
	}
	return cmd, op, nil
}

// params asserts the parameter type of a build routine.
func params[T any](p any) (T, error) {
	switch v := p.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: want %T, got %T", ErrInvalidParams, zero, p)
}

// fixed builds a parameterless command.
func fixed(line string, parse modem.ParseFunc) BuildFunc {
	return func(any) (*modem.Command, error) {
		cmd := modem.NewCommand("", line)
		cmd.Parse = parse
		return cmd, nil
	}
}

func none(any) (*modem.Command, error) { return nil, nil }
