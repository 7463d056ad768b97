package datacall

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/looplab/fsm"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/modem"
)

var (
	ErrNoFreeContext  = errors.New("datacall: no free context")
	ErrUnknownContext = errors.New("datacall: unknown context id")
)

// Context is the bookkeeping of one data session. Context id i+1 is
// carried by data channel i and its network interface.
type Context struct {
	CID       int
	State     State
	Channel   modem.ID
	Interface string

	APN       string
	PDPType   string
	Auth      adapter.Auth
	Username  string
	Password  string
	Emergency bool

	V4      string
	V6      string
	Gateway string
	DNS4    []string
	DNS6    []string

	Cause FailCause

	dataMode  bool
	ifaceUp   bool
	releasing bool
	machine   *fsm.FSM
}

// snapshot copies c without its state machine.
func (c *Context) snapshot() Context {
	out := *c
	out.DNS4 = slices.Clone(c.DNS4)
	out.DNS6 = slices.Clone(c.DNS6)
	out.machine = nil
	return out
}

// reset returns c to an unbound idle context.
func (c *Context) reset() {
	*c = Context{
		CID:       c.CID,
		State:     StateIdle,
		Channel:   c.Channel,
		Interface: c.Interface,
		machine:   c.machine,
	}
}

// Registry is the only state shared between data channels. One mutex
// guards every context.
type Registry struct {
	mu       sync.Mutex
	contexts []*Context
	channels []*modem.Channel
}

// NewRegistry creates one context per data channel. Interface names are
// prefix followed by the channel's position.
func NewRegistry(channels []*modem.Channel, prefix string, metrics *Metrics) *Registry {
	r := &Registry{channels: channels}
	for i, ch := range channels {
		c := &Context{
			CID:       i + 1,
			State:     StateIdle,
			Channel:   ch.ID(),
			Interface: prefix + strconv.Itoa(i),
		}
		c.machine = newMachine(fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.transition(e.Src, e.Dst)
			},
		})
		r.contexts = append(r.contexts, c)
	}
	return r
}

// Size is the number of contexts.
func (r *Registry) Size() int {
	return len(r.contexts)
}

func (r *Registry) lookup(cid int) (*Context, error) {
	if cid < 1 || cid > len(r.contexts) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContext, cid)
	}
	return r.contexts[cid-1], nil
}

// Acquire binds the first idle context to req and moves it to initing.
func (r *Registry) Acquire(ctx context.Context, req SetupRequest) (Context, *modem.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.contexts {
		if c.State != StateIdle {
			continue
		}
		if err := fire(ctx, c.machine, EventInit); err != nil {
			return Context{}, nil, err
		}
		c.State = State(c.machine.Current())
		c.APN = req.APN
		c.PDPType = req.PDPType
		c.Auth = req.Auth
		c.Username = req.Username
		c.Password = req.Password
		c.Emergency = req.Emergency
		r.channels[i].BindSession(c.CID)
		return c.snapshot(), r.channels[i], nil
	}
	return Context{}, nil, ErrNoFreeContext
}

// Get returns a copy of the context.
func (r *Registry) Get(cid int) (Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(cid)
	if err != nil {
		return Context{}, false
	}
	return c.snapshot(), true
}

// Update runs fn on the context under the registry lock.
func (r *Registry) Update(cid int, fn func(*Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(cid)
	if err != nil {
		return err
	}
	return fn(c)
}

// Claim marks a bound context as being released so that exactly one caller
// tears it down. It reports false when the context is idle or already
// claimed, and fails with ErrSetupInProgress while setup owns the context.
func (r *Registry) Claim(cid int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(cid)
	if err != nil {
		return false, err
	}
	switch {
	case c.State == StateIdle || c.releasing:
		return false, nil
	case c.State == StateIniting || c.State == StateActivating:
		return false, fmt.Errorf("%w: context %d", ErrSetupInProgress, cid)
	}
	c.releasing = true
	return true, nil
}

// Transition fires event on the context's lifecycle.
func (r *Registry) Transition(ctx context.Context, cid int, event string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(cid)
	if err != nil {
		return err
	}
	if err := fire(ctx, c.machine, event); err != nil {
		return fmt.Errorf("context %d: %s from %s: %w", cid, event, c.State, err)
	}
	c.State = State(c.machine.Current())
	return nil
}

// Release drops the context back to idle from any state and unbinds its
// channel.
func (r *Registry) Release(ctx context.Context, cid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.lookup(cid)
	if err != nil {
		return err
	}
	switch c.State {
	case StateIdle:
		return nil
	case StateIniting, StateActivating:
		if err := fire(ctx, c.machine, EventFail); err != nil {
			return err
		}
	}
	if err := fire(ctx, c.machine, EventRelease); err != nil {
		return err
	}
	c.reset()
	r.channels[cid-1].BindSession(0)
	return nil
}

// Bound reports whether the context is in use.
func (r *Registry) Bound(cid int) bool {
	c, ok := r.Get(cid)
	return ok && c.State != StateIdle
}

// Channel returns the data channel of the context.
func (r *Registry) Channel(cid int) *modem.Channel {
	if cid < 1 || cid > len(r.channels) {
		return nil
	}
	return r.channels[cid-1]
}

// ByChannel returns the context bound to the channel.
func (r *Registry) ByChannel(id modem.ID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contexts {
		if c.Channel == id && c.State != StateIdle {
			return c.CID, true
		}
	}
	return 0, false
}

// List returns every bound context ordered by id.
func (r *Registry) List() []Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Context
	for _, c := range r.contexts {
		if c.State != StateIdle {
			out = append(out, c.snapshot())
		}
	}
	return out
}
