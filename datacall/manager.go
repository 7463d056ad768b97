// Package datacall runs packet data sessions: it drives each context
// through define, activate, address query and data mode, and tears it
// down again on request or when the network drops it.
package datacall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/ipaddr"
	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/netif"
	"i4.energy/across/modemctl/repository"
	"i4.energy/across/modemctl/silo"
)

// ErrSetupInProgress is returned when a teardown targets a context that is
// still being set up.
var ErrSetupInProgress = errors.New("datacall: setup in progress")

const (
	maxDNS = 2

	// teardownTimeout bounds cleanup that outlives the request that
	// caused it.
	teardownTimeout = 60 * time.Second
)

// Modem is the part of the modem the manager drives.
type Modem interface {
	Control() *modem.Channel
	DataChannels() []*modem.Channel
	SIMReady() bool
}

type Config struct {
	Modem      Modem
	Adapter    *adapter.Adapter
	Interfaces netif.Configurator
	Repository repository.Repository
	Logger     *slog.Logger
	Metrics    *Metrics
	// Notify receives data-call-list-changed once a session dropped by
	// the network has been released.
	Notify modem.NotifyFunc
}

// SetupRequest carries the parameters of a new session.
type SetupRequest struct {
	APN       string
	PDPType   string
	Auth      adapter.Auth
	Username  string
	Password  string
	Emergency bool
}

// SetupError reports a failed setup together with its fail cause.
type SetupError struct {
	CID   int
	Cause FailCause
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("data call %d failed (%s): %v", e.CID, e.Cause, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// CauseOf returns the fail cause carried by err.
func CauseOf(err error) FailCause {
	var se *SetupError
	if errors.As(err, &se) {
		return se.Cause
	}
	if err == nil {
		return CauseNone
	}
	return CauseErrorUnspecified
}

type Manager struct {
	modem   Modem
	adapter *adapter.Adapter
	ifaces  netif.Configurator
	logger  *slog.Logger
	metrics *Metrics
	notify  modem.NotifyFunc
	mtu     int

	reg       *Registry
	lastCause atomic.Int64
	async     errgroup.Group
}

func New(cfg Config) (*Manager, error) {
	if cfg.Modem == nil || cfg.Adapter == nil || cfg.Interfaces == nil {
		return nil, errors.New("datacall: modem, adapter and interfaces are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.Map{}
	}

	prefix, err := repository.StringOr(repo, repository.GroupNetworking, repository.KeyInterfacePrefix, repository.DefaultInterfacePrefix)
	if err != nil {
		return nil, err
	}
	mtu, err := repository.IntOr(repo, repository.GroupNetworking, repository.KeyMTU, repository.DefaultMTU)
	if err != nil {
		return nil, err
	}

	channels := cfg.Modem.DataChannels()
	if len(channels) == 0 {
		return nil, errors.New("datacall: modem has no data channels")
	}

	return &Manager{
		modem:   cfg.Modem,
		adapter: cfg.Adapter,
		ifaces:  cfg.Interfaces,
		logger:  logger.With("component", "datacall"),
		metrics: cfg.Metrics,
		notify:  cfg.Notify,
		mtu:     mtu,
		reg:     NewRegistry(channels, prefix, cfg.Metrics),
	}, nil
}

// Registry exposes the session registry.
func (m *Manager) Registry() *Registry { return m.reg }

// Setup brings up a session and returns its context once the interface
// carries traffic. On failure the context is released and the error is a
// *SetupError.
func (m *Manager) Setup(ctx context.Context, req SetupRequest) (Context, error) {
	c, ch, err := m.reg.Acquire(ctx, req)
	if err != nil {
		return Context{}, err
	}
	cid := c.CID
	logger := m.logger.With("cid", cid, "channel", ch.ID(), "iface", c.Interface)
	logger.Info("setting up data call", "apn", req.APN, "pdp_type", req.PDPType)

	p := adapter.ContextParams{
		CID:       cid,
		APN:       req.APN,
		PDPType:   req.PDPType,
		Auth:      req.Auth,
		Username:  req.Username,
		Password:  req.Password,
		Emergency: req.Emergency,
		Mux:       int(ch.ID()),
	}

	if _, err := m.exec(ctx, ch, adapter.KindDefineContext, p); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, false, err)
	}
	if err := m.reg.Transition(ctx, cid, EventActivate); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, false, err)
	}
	if _, err := m.exec(ctx, ch, adapter.KindActivateContext, p); err != nil {
		return m.abort(ctx, cid, m.activationCause(ctx, ch, p, err), false, err)
	}

	rsp, err := m.exec(ctx, ch, adapter.KindQueryAddress, p)
	if err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}
	addrs, ok := rsp.Payload.(adapter.Addresses)
	if !ok {
		return m.abort(ctx, cid, CauseErrorUnspecified, true,
			modem.DecodeError(string(adapter.KindQueryAddress), fmt.Errorf("unexpected payload %T", rsp.Payload)))
	}

	var dns adapter.DNS
	if rsp, err := m.exec(ctx, ch, adapter.KindQueryDNS, p); err != nil {
		logger.Warn("dns query failed", "error", err)
	} else if rsp != nil {
		dns, _ = rsp.Payload.(adapter.DNS)
	}

	err = m.reg.Update(cid, func(c *Context) error {
		if c.State != StateActivating || c.Channel != ch.ID() {
			return modem.ConsistencyError("setup",
				fmt.Errorf("context %d is %s on channel %s", cid, c.State, c.Channel))
		}
		if addrs.CID != 0 && addrs.CID != cid {
			return modem.ConsistencyError("setup",
				fmt.Errorf("address reply for context %d on context %d", addrs.CID, cid))
		}
		c.V4, c.V6 = addrs.V4, addrs.V6
		if c.V4 != "" {
			gw, err := ipaddr.Gateway(c.V4)
			if err != nil {
				return err
			}
			c.Gateway = gw
		}
		c.DNS4 = first(dns.V4, maxDNS)
		c.DNS6 = first(dns.V6, maxDNS)
		return nil
	})
	if err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}

	if _, err := m.exec(ctx, ch, adapter.KindEnterData, p); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}
	if err := ch.SetMode(ctx, modem.ModeData, c.Interface); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}
	_ = m.reg.Update(cid, func(c *Context) error { c.dataMode = true; return nil })

	c, _ = m.reg.Get(cid)
	if err := m.bringUp(c, logger); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}
	if err := m.reg.Transition(ctx, cid, EventConnect); err != nil {
		return m.abort(ctx, cid, CauseErrorUnspecified, true, err)
	}

	c, _ = m.reg.Get(cid)
	logger.Info("data call active", "v4", c.V4, "v6", c.V6, "gateway", c.Gateway)
	return c, nil
}

// activationCause resolves the network cause of a failed activation. The
// cause either arrives with the failure or is fetched with a separate
// query after an error reply.
func (m *Manager) activationCause(ctx context.Context, ch *modem.Channel, p adapter.ContextParams, err error) FailCause {
	var ce *adapter.CauseError
	if errors.As(err, &ce) {
		return MapCause(ce.Cause)
	}
	if modem.ClassOf(err) != modem.ClassProtocol {
		return CauseErrorUnspecified
	}
	rsp, qerr := m.exec(ctx, ch, adapter.KindLastFailCause, p)
	if qerr != nil || rsp == nil {
		m.logger.Warn("last fail cause unavailable", "cid", p.CID, "error", qerr)
		return CauseErrorUnspecified
	}
	cause, _ := rsp.Payload.(int)
	return MapCause(cause)
}

// bringUp configures the interface of an addressed context. Address
// assignment is required, everything else is best-effort.
func (m *Manager) bringUp(c Context, logger *slog.Logger) error {
	iface := c.Interface
	var v6 netip.Addr
	for _, raw := range []string{c.V4, c.V6} {
		if raw == "" {
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return modem.DecodeError("bring-up", err)
		}
		bits := 32
		if a.Is6() {
			bits = 64
			v6 = a
		}
		if err := m.ifaces.SetAddress(iface, netip.PrefixFrom(a, bits)); err != nil {
			return fmt.Errorf("assign %s to %s: %w", a, iface, err)
		}
	}
	_ = m.reg.Update(c.CID, func(c *Context) error { c.ifaceUp = true; return nil })

	if err := m.ifaces.SetMTU(iface, m.mtu); err != nil {
		logger.Warn("set mtu", "mtu", m.mtu, "error", err)
	}
	if v6.IsValid() {
		if err := m.ifaces.SetIPv6DAD(iface, false); err != nil {
			logger.Warn("disable duplicate address detection", "error", err)
		}
	}
	if err := m.ifaces.SetFlags(iface, true, true); err != nil {
		logger.Warn("set interface flags", "error", err)
	}
	if v6.IsValid() {
		ll, err := ipaddr.LinkLocal(v6.String())
		if err == nil {
			err = m.ifaces.SetAddress(iface, netip.PrefixFrom(netip.MustParseAddr(ll), 64))
		}
		if err != nil {
			logger.Warn("assign link-local address", "error", err)
		}
	}
	return nil
}

// abort fails the context, cleans up whatever setup already changed and
// releases the context.
func (m *Manager) abort(ctx context.Context, cid int, cause FailCause, activated bool, err error) (Context, error) {
	m.logger.Warn("data call setup failed", "cid", cid, "cause", cause, "error", err)
	m.lastCause.Store(int64(cause))
	m.metrics.failure(cause)
	_ = m.reg.Update(cid, func(c *Context) error {
		c.Cause = cause
		c.releasing = true
		return nil
	})
	if terr := m.reg.Transition(ctx, cid, EventFail); terr != nil {
		m.logger.Debug("fail transition", "cid", cid, "error", terr)
	}

	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	m.release(cleanup, cid, activated)
	return Context{}, &SetupError{CID: cid, Cause: cause, Err: err}
}

// Teardown ends the session of cid. An unbound cid, or one another
// teardown is already releasing, is a no-op. Without a ready SIM the modem
// is not asked to deactivate.
func (m *Manager) Teardown(ctx context.Context, cid int) error {
	claimed, err := m.reg.Claim(cid)
	if err != nil || !claimed {
		return err
	}

	deactivate := m.modem.SIMReady()
	if !deactivate {
		m.logger.Info("sim not ready, releasing data call locally", "cid", cid)
	}
	m.release(ctx, cid, deactivate)
	m.logger.Info("data call released", "cid", cid)
	return nil
}

// release reverts the channel to command mode, optionally deactivates the
// context on the modem, takes the interface down and frees the context.
// Failures along the way are logged and never stop the release.
func (m *Manager) release(ctx context.Context, cid int, deactivate bool) {
	c, _ := m.reg.Get(cid)
	ch := m.reg.Channel(cid)
	logger := m.logger.With("cid", cid)

	if c.dataMode || ch.Held() {
		if err := ch.SetMode(ctx, modem.ModeCommand, ""); err != nil {
			logger.Warn("revert to command mode", "error", err)
		}
	}
	if deactivate {
		p := adapter.ContextParams{CID: cid, APN: c.APN, PDPType: c.PDPType, Mux: int(ch.ID())}
		if _, err := m.exec(ctx, ch, adapter.KindDeactivate, p); err != nil {
			logger.Info("deactivate failed, releasing anyway", "error", err)
		}
	}
	if c.ifaceUp {
		if err := m.ifaces.Down(c.Interface); err != nil {
			logger.Warn("interface down", "iface", c.Interface, "error", err)
		}
	}
	if err := m.reg.Release(ctx, cid); err != nil {
		logger.Error("release context", "error", err)
	}
}

// CleanupAll tears down every active session.
func (m *Manager) CleanupAll(ctx context.Context) error {
	var errs []error
	for _, c := range m.reg.List() {
		if c.State != StateActive && c.State != StateFailed {
			continue
		}
		errs = append(errs, m.Teardown(ctx, c.CID))
	}
	return errors.Join(errs...)
}

// List returns the bound contexts.
func (m *Manager) List() []Context {
	return m.reg.List()
}

// LastFailCause is the cause of the most recent failed setup.
func (m *Manager) LastFailCause() FailCause {
	return FailCause(m.lastCause.Load())
}

// HandleNotification tears down the sessions a notification reports as
// dropped. It runs on a dispatcher goroutine, so the teardown itself runs
// asynchronously; Wait blocks until all such teardowns have finished.
func (m *Manager) HandleNotification(n modem.Notification) {
	var cid int
	switch n.Kind {
	case silo.NotifyNoCarrier:
		cid = n.Session
		if cid == 0 {
			cid, _ = m.reg.ByChannel(n.Channel)
		}
	case silo.NotifyDataCallDeactivate:
		cid = deactivatedContext(n)
	default:
		return
	}
	if cid == 0 {
		return
	}
	if c, ok := m.reg.Get(cid); !ok || c.State != StateActive {
		return
	}

	m.logger.Info("network dropped data call", "cid", cid, "event", n.Kind)
	m.async.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := m.Teardown(ctx, cid); err != nil {
			m.logger.Warn("teardown after network drop", "cid", cid, "error", err)
			return err
		}
		m.listChanged(n.Channel)
		return nil
	})
}

// listChanged reports the current session list.
func (m *Manager) listChanged(ch modem.ID) {
	if m.notify == nil {
		return
	}
	m.notify(modem.Notification{
		Kind:    silo.NotifyDataCallList,
		Silo:    "datacall",
		Channel: ch,
		Payload: m.List(),
	})
}

// HandleNoCarrier tears down the session carried by ch.
func (m *Manager) HandleNoCarrier(ch modem.ID) {
	m.HandleNotification(modem.Notification{Kind: silo.NotifyNoCarrier, Channel: ch})
}

// Wait blocks until asynchronous teardowns are done.
func (m *Manager) Wait() error {
	return m.async.Wait()
}

// deactivatedContext extracts the cid of "NW DEACT <type>,<addr>[,<cid>]".
// Events without one fall back to the session of the reporting channel.
func deactivatedContext(n modem.Notification) int {
	if s, ok := n.Payload.(string); ok {
		if i := strings.LastIndexByte(s, ','); i >= 0 {
			if cid, err := strconv.Atoi(strings.TrimSpace(s[i+1:])); err == nil {
				return cid
			}
		}
	}
	return n.Session
}

// exec builds kind and runs it on the channel its route selects. A
// variant with nothing to send yields a nil response and no error.
func (m *Manager) exec(ctx context.Context, data *modem.Channel, kind adapter.Kind, p adapter.ContextParams) (*modem.Response, error) {
	cmd, op, err := m.adapter.Build(kind, p)
	if err != nil || cmd == nil {
		return nil, err
	}
	ch := data
	if op.Route == adapter.RouteControl {
		ch = m.modem.Control()
	}
	return ch.Exec(ctx, cmd)
}

func first(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return s
}
