package modem

import (
	"context"
	"fmt"
)

// Mode is the traffic a channel carries.
type Mode int32

const (
	// ModeCommand carries line-oriented AT traffic.
	ModeCommand Mode = iota
	// ModeData carries raw session payload; the dispatcher neither
	// transmits nor interprets anything while a channel is in this mode.
	ModeData
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "command"
	case ModeData:
		return "data"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

type modeRequest struct {
	ctx    context.Context
	mode   Mode
	iface  string
	result chan error
}

// SetMode switches the channel between command and data mode. The switch is
// performed by the dispatcher loop between commands and is refused with
// ErrCommandInFlight while a command awaits its reply. On failure the
// channel keeps its previous mode, and a hold placed by a CONNECT reply
// stays in place.
func (c *Channel) SetMode(ctx context.Context, mode Mode, iface string) error {
	if !c.running.Load() {
		return ErrNotRunning
	}

	req := modeRequest{ctx: ctx, mode: mode, iface: iface, result: make(chan error, 1)}
	select {
	case c.modeReqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// switchMode runs on the dispatcher goroutine. A request for command mode
// on a held channel that never reached data mode only lifts the hold.
func (c *Channel) switchMode(req modeRequest, busy bool, tokens <-chan string) error {
	if busy {
		return ErrCommandInFlight
	}
	from := c.Mode()
	if from == req.mode {
		if req.mode == ModeCommand && c.held.CompareAndSwap(true, false) {
			c.logger.Info("releasing data hold")
			c.flushAndUnblock(tokens)
		}
		return nil
	}
	if c.switcher == nil {
		return ErrNoModeSwitcher
	}

	c.logger.Info("switching channel mode", "from", from, "to", req.mode, "iface", req.iface)

	c.blockAndFlush(tokens)
	defer c.flushAndUnblock(tokens)

	if err := c.switcher.SwitchMode(req.ctx, req.mode, req.iface); err != nil {
		c.logger.Error("mode switch failed", "to", req.mode, "error", err)
		return TransportError("set-mode", err)
	}

	c.mode.Store(int32(req.mode))
	c.held.Store(false)
	c.metrics.mode(c.id, req.mode)
	return nil
}

// blockAndFlush stops line interpretation and discards pending input.
func (c *Channel) blockAndFlush(tokens <-chan string) {
	c.blocked.Store(true)
	c.flush(tokens)
}

// flushAndUnblock discards input that arrived during the switch and resumes
// line interpretation.
func (c *Channel) flushAndUnblock(tokens <-chan string) {
	c.flush(tokens)
	c.urc = nil
	c.blocked.Store(false)
}

func (c *Channel) flush(tokens <-chan string) {
	if f, ok := c.transport.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			c.logger.Warn("flush input buffer", "error", err)
		}
	}
	for {
		select {
		case _, ok := <-tokens:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
