package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/atomic"

	"i4.energy/across/modemctl/at"
)

// ID identifies a channel.
type ID int

func (id ID) String() string {
	return strconv.Itoa(int(id))
}

const maxLineLength = 64 * 1024

// TimeoutSource supplies per-kind default command timeouts.
type TimeoutSource interface {
	Timeout(kind string) (time.Duration, bool)
}

// Channel owns one transport endpoint of the multiplexer. Its Run loop is
// the only goroutine that writes to the transport or interprets what it
// reads, which keeps exactly one command in flight per channel while
// unsolicited lines are handled at any time.
type Channel struct {
	id          ID
	name        string
	data        bool
	transport   Transport
	switcher    ModeSwitcher
	silos       []*Silo
	queue       *Queue
	logger      *slog.Logger
	metrics     *Metrics
	notify      NotifyFunc
	timeouts    TimeoutSource
	atTimeout   time.Duration
	maxTimeouts int

	mode     atomic.Int32
	session  atomic.Int32
	blocked  atomic.Bool
	held     atomic.Bool
	running  atomic.Bool
	inflight atomic.Int32
	peak     atomic.Int32

	modeReqs chan modeRequest

	// Owned by the Run goroutine.
	tokens        <-chan string
	urc           *urcAssembly
	timeoutsInRow int
}

// exchange is the in-flight state of one command.
type exchange struct {
	cmd     *Command
	step    int
	attempt int
	rsp     *Response
}

// urcAssembly collects the trailing lines of a multi-line unsolicited event.
type urcAssembly struct {
	silo  *Silo
	entry Entry
	lines []string
}

func newChannel(cc ChannelConfig, t Transport, cfg Config) *Channel {
	name := cc.Name
	if name == "" {
		name = "chnl" + cc.ID.String()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		id:          cc.ID,
		name:        name,
		data:        cc.Data,
		transport:   t,
		switcher:    cc.Switcher,
		silos:       cc.Silos,
		queue:       NewQueue(),
		logger:      logger.With("channel", name),
		metrics:     cfg.Metrics,
		notify:      cfg.OnNotify,
		timeouts:    cfg.Timeouts,
		atTimeout:   cfg.ATTimeout,
		maxTimeouts: cfg.MaxTimeouts,
		modeReqs:    make(chan modeRequest),
	}
}

// NewChannel builds a standalone channel over t. Channels created by New
// share the modem's configuration; NewChannel is meant for tools and tests
// that drive a single endpoint.
func NewChannel(cc ChannelConfig, t Transport, cfg Config) *Channel {
	cfg.setDefaults()
	return newChannel(cc, t, cfg)
}

func (c *Channel) ID() ID { return c.id }
func (c *Channel) Name() string { return c.name }
func (c *Channel) IsData() bool { return c.data }
func (c *Channel) Silos() []*Silo { return c.silos }
func (c *Channel) QueueLen() int { return c.queue.Len() }
func (c *Channel) Mode() Mode { return Mode(c.mode.Load()) }
func (c *Channel) Session() int { return int(c.session.Load()) }
func (c *Channel) InFlight() int { return int(c.inflight.Load()) }
func (c *Channel) PeakInFlight() int { return int(c.peak.Load()) }
func (c *Channel) Running() bool { return c.running.Load() }

// Held reports whether the channel stopped after a CONNECT and waits for
// SetMode.
func (c *Channel) Held() bool { return c.held.Load() }

// BindSession records the data session carried by the channel. 0 unbinds.
func (c *Channel) BindSession(cid int) {
	c.session.Store(int32(cid))
}

// Enqueue queues cmd for transmission and returns immediately. The
// command's outcome is delivered to its Parse and OnComplete routines. A
// command rejected because the channel stopped is completed with ErrClosed.
func (c *Channel) Enqueue(cmd *Command) error {
	cmd.Channel = c.id
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.defaultTimeout(cmd.Kind)
	}
	if err := c.queue.Push(cmd); err != nil {
		rsp := newResponse(c.id)
		rsp.Err = err
		c.complete(cmd, rsp)
		return err
	}
	c.metrics.queueDepth(c.id, c.queue.Len())
	return nil
}

// Exec queues cmd and waits for its completion. The returned response is
// non-nil whenever the command completed, including failures.
//
// Cancelling ctx stops the wait but not the command: a transmitted command
// always runs to completion.
func (c *Channel) Exec(ctx context.Context, cmd *Command) (*Response, error) {
	cmd.done = make(chan *Response, 1)
	if err := c.Enqueue(cmd); err != nil {
		return nil, err
	}

	select {
	case rsp := <-cmd.done:
		return rsp, rsp.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", cmd.Kind, ctx.Err())
	}
}

func (c *Channel) defaultTimeout(kind string) time.Duration {
	if c.timeouts != nil {
		if d, ok := c.timeouts.Timeout(kind); ok && d > 0 {
			return d
		}
	}
	return c.atTimeout
}

// Run is the channel's dispatcher loop. It must be called exactly once; it
// runs until ctx is cancelled or the transport fails, and completes every
// queued command with ErrClosed on exit.
//
// The loop coordinates all communication on the channel:
//
//  1. Pops the queue head when idle and in command mode and writes it
//  2. Reads and classifies lines from the transport
//  3. Completes the in-flight command on its final result or timeout
//  4. Dispatches unsolicited lines to the registered Silos
//  5. Performs mode switches between commands
func (c *Channel) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer c.running.Store(false)

	scanner := bufio.NewScanner(c.transport)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	scanner.Split(at.Splitter)

	tokens := make(chan string, 16)
	scanErrs := make(chan error, 1)
	c.tokens = tokens

	go func() {
		defer close(tokens)
		for scanner.Scan() {
			token := scanner.Text()
			if token == "" {
				continue
			}
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = ErrLineTooLong
			}
			select {
			case scanErrs <- err:
			case <-ctx.Done():
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	defer func() {
		for _, cmd := range c.queue.Close() {
			rsp := newResponse(c.id)
			rsp.Err = ErrClosed
			c.complete(cmd, rsp)
		}
		c.metrics.queueDepth(c.id, 0)
	}()

	var cur *exchange
	for {
		if cur == nil && c.Mode() == ModeCommand && !c.held.Load() {
			if cmd := c.queue.Pop(); cmd != nil {
				c.metrics.queueDepth(c.id, c.queue.Len())
				cur = c.begin(cmd, timer)
				continue
			}
		}

		select {
		case <-ctx.Done():
			if cur != nil {
				c.abort(cur, timer, ctx.Err())
			}
			return ctx.Err()

		case <-c.queue.Ready():

		case req := <-c.modeReqs:
			req.result <- c.switchMode(req, cur != nil, tokens)

		case <-timer.C:
			if cur != nil {
				cur = c.onTimeout(cur, timer)
			}

		case token, ok := <-tokens:
			if ok {
				cur = c.handleLine(cur, token, timer)
				continue
			}
			// The scanner reports its error before closing tokens.
			select {
			case err := <-scanErrs:
				return c.readFailed(cur, timer, err)
			default:
			}
			if cur != nil {
				c.abort(cur, timer, io.EOF)
			}
			return io.EOF

		case err := <-scanErrs:
			return c.readFailed(cur, timer, err)
		}
	}
}

func (c *Channel) readFailed(cur *exchange, timer *time.Timer, err error) error {
	if cur != nil {
		c.abort(cur, timer, fmt.Errorf("read error: %w", err))
	}
	return fmt.Errorf("scanner error: %w", err)
}

func (c *Channel) begin(cmd *Command, timer *time.Timer) *exchange {
	cmd.started = true
	cmd.begun = time.Now()
	if cmd.Timeout <= 0 {
		cmd.Timeout = c.atTimeout
	}

	n := c.inflight.Inc()
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}

	ex := &exchange{cmd: cmd}
	if err := c.transmit(ex, timer); err != nil {
		ex.rsp.Err = err
		c.complete(cmd, ex.rsp)
		return nil
	}
	return ex
}

// transmit writes the current step of ex and arms the step timer.
func (c *Channel) transmit(ex *exchange, timer *time.Timer) error {
	ex.rsp = newResponse(c.id)
	text := ex.cmd.text(ex.step)

	c.logger.Debug("tx", "kind", ex.cmd.Kind, "step", ex.step, "attempt", ex.attempt, "cmd", text)

	wire := strings.TrimSpace(text) + at.CR
	if _, err := c.transport.Write([]byte(wire)); err != nil {
		timer.Stop()
		return TransportError(ex.cmd.Kind, fmt.Errorf("write command %q: %w", text, err))
	}
	timer.Reset(ex.cmd.Timeout)
	return nil
}

func (c *Channel) handleLine(cur *exchange, line string, timer *time.Timer) *exchange {
	if c.blocked.Load() || c.held.Load() || c.Mode() == ModeData {
		c.logger.Debug("discarding input while not in command mode", "bytes", len(line))
		return cur
	}

	if !utf8.ValidString(line) || strings.IndexByte(line, 0) >= 0 {
		if cur != nil {
			cur.rsp.Corrupt = true
			return cur
		}
		c.logger.Warn("dropping corrupt line", "bytes", len(line))
		c.metrics.unrecognized(c.id)
		return cur
	}

	if c.urc != nil {
		c.urc.lines = append(c.urc.lines, line)
		if len(c.urc.lines) > c.urc.entry.Trailing {
			u := c.urc
			c.urc = nil
			c.unsolicited(u.silo, u.entry, u.lines)
		}
		return cur
	}

	if cur != nil {
		if res, ok := at.ParseResult(line); ok {
			cur.rsp.Result = res
			c.timeoutsInRow = 0
			return c.stepDone(cur, timer)
		}
		// A line that is both a reply and a registered unsolicited prefix
		// belongs to the command awaiting it.
		if cur.cmd.expects(cur.step, line) {
			cur.rsp.Lines = append(cur.rsp.Lines, line)
			return cur
		}
	}

	if silo, entry, ok := c.match(line); ok {
		if entry.Trailing > 0 {
			c.urc = &urcAssembly{silo: silo, entry: entry, lines: []string{line}}
			return cur
		}
		c.unsolicited(silo, entry, []string{line})
		return cur
	}

	if cur != nil {
		cur.rsp.Lines = append(cur.rsp.Lines, line)
		return cur
	}

	c.logger.Debug("unrecognized line", "line", line)
	c.metrics.unrecognized(c.id)
	return cur
}

func (c *Channel) match(line string) (*Silo, Entry, bool) {
	for _, s := range c.silos {
		if e, ok := s.Match(line); ok {
			return s, e, true
		}
	}
	return nil, Entry{}, false
}

func (c *Channel) unsolicited(s *Silo, e Entry, lines []string) {
	rsp := newResponse(c.id)
	rsp.Unsolicited = true
	rsp.Lines = lines

	if e.Parse != nil {
		if err := e.Parse(rsp, strings.TrimPrefix(lines[0], e.Prefix)); err != nil {
			c.logger.Warn("dropping undecodable unsolicited line", "silo", s.Name, "line", lines[0], "error", err)
			return
		}
	}
	if rsp.Unrecognized {
		c.logger.Debug("silo rejected line", "silo", s.Name, "line", lines[0])
		c.metrics.unrecognized(c.id)
		return
	}

	c.metrics.unsolicited(s.Name, e.Prefix)
	if rsp.Notify == "" {
		c.logger.Debug("unsolicited", "silo", s.Name, "line", lines[0])
		return
	}
	c.emit(Notification{
		Kind:    rsp.Notify,
		Silo:    s.Name,
		Channel: c.id,
		Session: c.Session(),
		Payload: rsp.Payload,
		Raw:     lines[0],
	})
}

func (c *Channel) emit(n Notification) {
	if c.notify != nil {
		c.notify(n)
	}
}

func (c *Channel) stepDone(ex *exchange, timer *time.Timer) *exchange {
	timer.Stop()
	if !ex.rsp.OK() {
		return c.retryOrComplete(ex, timer)
	}
	if ex.step == 0 && ex.cmd.Secondary != "" {
		ex.step, ex.attempt = 1, 0
		if err := c.transmit(ex, timer); err != nil {
			ex.rsp.Err = err
			c.complete(ex.cmd, ex.rsp)
			return nil
		}
		return ex
	}
	if ex.cmd.EntersData && ex.rsp.Result.Code == at.ResultConnect {
		c.hold()
	}
	c.complete(ex.cmd, ex.rsp)
	return nil
}

// hold stops the channel on a confirmed switch to data. Bytes that follow
// CONNECT belong to the session and are discarded until SetMode runs.
func (c *Channel) hold() {
	c.logger.Info("modem entered data state, holding channel")
	c.held.Store(true)
	c.blockAndFlush(c.tokens)
	c.urc = nil
}

func (c *Channel) onTimeout(ex *exchange, timer *time.Timer) *exchange {
	ex.rsp.TimedOut = true
	c.metrics.timeout(c.id)
	c.logger.Warn("command timed out",
		"kind", ex.cmd.Kind, "step", ex.step, "attempt", ex.attempt, "timeout", ex.cmd.Timeout)

	c.timeoutsInRow++
	if c.maxTimeouts > 0 && c.timeoutsInRow >= c.maxTimeouts {
		c.timeoutsInRow = 0
		c.logger.Error("modem stopped answering", "consecutive_timeouts", c.maxTimeouts)
		c.emit(Notification{Kind: NotifyModemUnresponsive, Channel: c.id, Session: c.Session()})
	}
	return c.retryOrComplete(ex, timer)
}

func (c *Channel) retryOrComplete(ex *exchange, timer *time.Timer) *exchange {
	if ex.attempt < ex.cmd.Retries {
		ex.attempt++
		c.logger.Info("retrying command", "kind", ex.cmd.Kind, "step", ex.step, "attempt", ex.attempt)
		if err := c.transmit(ex, timer); err != nil {
			ex.rsp.Err = err
			c.complete(ex.cmd, ex.rsp)
			return nil
		}
		return ex
	}
	c.complete(ex.cmd, ex.rsp)
	return nil
}

func (c *Channel) abort(ex *exchange, timer *time.Timer, err error) {
	timer.Stop()
	ex.rsp.Err = TransportError(ex.cmd.Kind, err)
	c.complete(ex.cmd, ex.rsp)
}

// complete is the single completion point of every command: parse, then
// the post-completion routine, then release of the context blob, then
// wake-up of a waiting Exec.
func (c *Channel) complete(cmd *Command, rsp *Response) {
	if cmd.started {
		c.inflight.Dec()
	}

	if err := rsp.failure(cmd.Kind); err != nil {
		rsp.Err = err
	}

	if cmd.Parse != nil && (rsp.Err == nil || cmd.AlwaysParse) {
		if err := cmd.Parse(rsp); err != nil {
			if ClassOf(err) == 0 {
				err = DecodeError(cmd.Kind, err)
			}
			rsp.Err = err
		}
	}

	c.metrics.commandDone(c.id, cmd.Kind, rsp, cmd.begun)
	if rsp.Err != nil {
		c.logger.Info("command failed", "kind", cmd.Kind, "token", cmd.Token, "error", rsp.Err)
	} else {
		c.logger.Debug("command completed", "kind", cmd.Kind, "token", cmd.Token)
	}

	if cmd.OnComplete != nil {
		cmd.OnComplete(cmd, rsp)
	}
	cmd.release()

	if cmd.done != nil {
		cmd.done <- rsp
	}
}
