package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/internal/retry"
)

// Modem is a cellular modem reached over one or more multiplexed channels.
// Every channel runs its own dispatcher loop; commands for different
// channels proceed in parallel while each channel keeps one command in
// flight.
type Modem struct {
	config   Config
	logger   *slog.Logger
	channels []*Channel
	byID     map[ID]*Channel

	closed   atomic.Bool
	started  atomic.Bool
	simReady atomic.Bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New opens the transport of every configured channel. Transport opens are
// retried with backoff since mux device nodes can appear late.
//
// The dispatcher loops are not running until Start is called.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	m := &Modem{
		config: config,
		logger: config.Logger,
		byID:   make(map[ID]*Channel, len(config.Channels)),
	}

	dialCfg := retry.Dial()
	dialCfg.MaxAttempts = config.DialRetries

	for _, cc := range config.Channels {
		t, err := retry.DoWithResult(ctx, dialCfg, func() (Transport, error) {
			return cc.Dialer.Dial(ctx)
		})
		if err == nil && t == nil {
			err = ErrNotInitialized
		}
		if err != nil {
			m.closeTransports()
			return nil, TransportError("open channel "+cc.ID.String(), err)
		}

		ch := newChannel(cc, t, config)
		m.channels = append(m.channels, ch)
		m.byID[cc.ID] = ch
	}

	return m, nil
}

// Start runs the dispatcher loop of every channel and performs the
// initialization sequence. The loops run until ctx is cancelled, Close is
// called, or any channel's transport fails.
func (m *Modem) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	g, gctx := errgroup.WithContext(loopCtx)
	for _, ch := range m.channels {
		g.Go(func() error {
			if err := ch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("channel %s: %w", ch.Name(), err)
			}
			return nil
		})
	}
	m.group = g

	initCtx, cancelInit := context.WithTimeout(ctx, m.config.InitTimeout)
	defer cancelInit()

	if err := m.init(initCtx); err != nil {
		cancel()
		return fmt.Errorf("initialize modem: %w", err)
	}
	return nil
}

// Wait blocks until every dispatcher loop has stopped and returns the first
// loop failure. Loops stopped by Close report no error.
func (m *Modem) Wait() error {
	if m.group == nil {
		return ErrNotRunning
	}
	err := m.group.Wait()
	if m.closed.Load() {
		return nil
	}
	return err
}

// Close stops the dispatcher loops and closes every transport. After
// calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m.closeTransports()
}

func (m *Modem) closeTransports() error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Channel returns the channel with the given id.
func (m *Modem) Channel(id ID) (*Channel, error) {
	ch, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	return ch, nil
}

// Channels returns every channel in configuration order.
func (m *Modem) Channels() []*Channel {
	return m.channels
}

// Control returns the first configured channel, which carries SIM and
// network management traffic.
func (m *Modem) Control() *Channel {
	return m.channels[0]
}

// DataChannels returns the channels able to carry a data session.
func (m *Modem) DataChannels() []*Channel {
	var out []*Channel
	for _, ch := range m.channels {
		if ch.IsData() {
			out = append(out, ch)
		}
	}
	return out
}

// Exec runs cmd on the channel named by cmd.Channel and waits for its
// completion.
func (m *Modem) Exec(ctx context.Context, cmd *Command) (*Response, error) {
	if m.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	ch, err := m.Channel(cmd.Channel)
	if err != nil {
		return nil, err
	}
	return ch.Exec(ctx, cmd)
}

// Enqueue queues cmd on the channel named by cmd.Channel.
func (m *Modem) Enqueue(cmd *Command) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	ch, err := m.Channel(cmd.Channel)
	if err != nil {
		return err
	}
	return ch.Enqueue(cmd)
}

// SIMReady reports whether the SIM was last seen ready.
func (m *Modem) SIMReady() bool {
	return m.simReady.Load()
}

// SetSIMReady records a SIM state change reported by the modem.
func (m *Modem) SetSIMReady(ready bool) {
	if m.simReady.Swap(ready) != ready {
		m.logger.Info("SIM state changed", "ready", ready)
	}
}

// init performs the initial setup sequence. Every channel is woken up and
// switched to numeric errors without echo; the SIM is then unlocked on the
// control channel.
func (m *Modem) init(ctx context.Context) error {
	steps := []struct {
		cmd  string
		fail string
	}{
		{at.CmdAt, "modem not responding"},
		{at.CmdEchoOff, "could not disable echo"},
		{at.CmdVerboseErrors, "could not enable numeric errors"},
	}

	for _, ch := range m.channels {
		for _, s := range steps {
			if err := m.expectOK(ctx, ch, s.cmd); err != nil {
				return fmt.Errorf("channel %s: %s: %w", ch.Name(), s.fail, err)
			}
		}
	}

	return m.unlockSIM(ctx, m.Control())
}

// expectOK executes an initialization command ahead of any queued work.
func (m *Modem) expectOK(ctx context.Context, ch *Channel, cmd string) error {
	c := NewCommand("init", cmd)
	c.HighPriority = true
	_, err := ch.Exec(ctx, c)
	return err
}

func (m *Modem) simStatus(ctx context.Context, ch *Channel) (string, error) {
	c := NewCommand("sim-status", at.CmdSimStatus)
	c.HighPriority = true
	rsp, err := ch.Exec(ctx, c)
	if err != nil {
		return "", err
	}
	status, ok := rsp.Line("+CPIN: ")
	if !ok {
		return "", DecodeError("sim-status", fmt.Errorf("no +CPIN line in %q", rsp.Text()))
	}
	return status, nil
}

func (m *Modem) unlockSIM(ctx context.Context, ch *Channel) error {
	status, err := m.simStatus(ctx, ch)
	if err != nil {
		var cme *at.CMEError
		if errors.As(err, &cme) && cme.Code == at.CMESimNotInserted {
			m.logger.Warn("no SIM inserted")
			m.SetSIMReady(false)
			return nil
		}
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch status {
	case at.SimReady:

	case at.SimPin:
		if m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if err := m.expectOK(ctx, ch, fmt.Sprintf(`AT+CPIN="%s"`, m.config.SimPIN)); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		if err := m.waitForSIMReady(ctx, ch, m.config.SIMPoll); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", status)
	}

	m.SetSIMReady(true)
	return nil
}

// waitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (m *Modem) waitForSIMReady(ctx context.Context, ch *Channel, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return fmt.Errorf("SIM not ready after %d retries", maxRetries)
			}
			status, err := m.simStatus(ctx, ch)
			if err != nil {
				if errors.Is(err, ErrClosed) || ClassOf(err) == ClassTransport {
					return fmt.Errorf("SIM status check failed: %w", err)
				}
				continue
			}
			if status == at.SimReady {
				return nil
			}
		}
	}
}
