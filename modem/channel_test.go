package modem_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/mock/gomock"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
)

type channelRig struct {
	ch     *modem.Channel
	tr     *modem.TestTransport
	cancel context.CancelFunc
	done   chan error
	notes  chan modem.Notification
}

func newChannelRig(t *testing.T, cc modem.ChannelConfig, cfg modem.Config) *channelRig {
	t.Helper()

	r := &channelRig{
		tr:    modem.NewTestTransport(),
		done:  make(chan error, 1),
		notes: make(chan modem.Notification, 16),
	}
	if cfg.OnNotify == nil {
		cfg.OnNotify = func(n modem.Notification) { r.notes <- n }
	}
	r.ch = modem.NewChannel(cc, r.tr, cfg)
	return r
}

func (r *channelRig) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.done <- r.ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-r.done
		r.tr.Close()
	})
	waitFor(t, "loop running", r.ch.Running)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func execCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type countingReleaser struct {
	n atomic.Int32
}

func (c *countingReleaser) Release() { c.n.Inc() }

func TestChannelExec(t *testing.T) {
	t.Run("Information lines and final result", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CGMM", "XMM7160", "OK").Responder())
		r.start(t)

		rsp, err := r.ch.Exec(execCtx(t), modem.NewCommand("model", "AT+CGMM"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rsp.Text() != "XMM7160" {
			t.Errorf("expected model line, got %q", rsp.Text())
		}
		if rsp.Channel != 1 {
			t.Errorf("expected response from channel 1, got %d", rsp.Channel)
		}
	})

	t.Run("CME error is a protocol error", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CGACT=1,1", "+CME ERROR: 30").Responder())
		r.start(t)

		rsp, err := r.ch.Exec(execCtx(t), modem.NewCommand("activate", "AT+CGACT=1,1"))
		if modem.ClassOf(err) != modem.ClassProtocol {
			t.Fatalf("expected protocol error, got: %v", err)
		}
		var cme *at.CMEError
		if !errors.As(err, &cme) || cme.Code != 30 {
			t.Errorf("expected CME 30, got: %v", err)
		}
		if rsp == nil || rsp.Result.Code != at.ResultCME {
			t.Errorf("expected CME result in response, got %+v", rsp)
		}
	})

	t.Run("Parse routine decodes the payload", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CSQ", "+CSQ: 21,99", "OK").Responder())
		r.start(t)

		cmd := modem.NewCommand("signal-strength", "AT+CSQ")
		cmd.Parse = func(rsp *modem.Response) error {
			line, ok := rsp.Line("+CSQ: ")
			if !ok {
				return errors.New("missing +CSQ")
			}
			rssi, _, err := at.Int(line)
			rsp.Payload = rssi
			return err
		}

		rsp, err := r.ch.Exec(execCtx(t), cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rsp.Payload != 21 {
			t.Errorf("expected rssi 21, got %v", rsp.Payload)
		}
	})

	t.Run("Parse failure is a decode error", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CSQ", "OK").Responder())
		r.start(t)

		cmd := modem.NewCommand("signal-strength", "AT+CSQ")
		cmd.Parse = func(rsp *modem.Response) error { return errors.New("missing +CSQ") }

		_, err := r.ch.Exec(execCtx(t), cmd)
		if modem.ClassOf(err) != modem.ClassDecode {
			t.Errorf("expected decode error, got: %v", err)
		}
	})

	t.Run("Corrupt bytes fail the command", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(func(cmd string) string { return "\r\n\xff\xfe\r\nOK\r\n" })
		r.start(t)

		_, err := r.ch.Exec(execCtx(t), modem.NewCommand("model", "AT+CGMM"))
		if !errors.Is(err, modem.ErrCorruptResponse) {
			t.Errorf("expected ErrCorruptResponse, got: %v", err)
		}
	})

	t.Run("Write failure is a transport error", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.FailWrites(errors.New("device gone"))
		r.start(t)

		_, err := r.ch.Exec(execCtx(t), modem.NewCommand("model", "AT+CGMM"))
		if modem.ClassOf(err) != modem.ClassTransport {
			t.Errorf("expected transport error, got: %v", err)
		}
		if r.ch.InFlight() != 0 {
			t.Errorf("expected nothing in flight, got %d", r.ch.InFlight())
		}
	})
}

func TestChannelSecondary(t *testing.T) {
	t.Run("Sent after primary succeeds", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().
			On("AT+CGACT=1,1", "OK").
			On("AT+CEER", `+CEER: "",0,""`, "OK").
			Responder())
		r.start(t)

		cmd := modem.NewCommand("activate", "AT+CGACT=1,1").Chain("AT+CEER")
		rsp, err := r.ch.Exec(execCtx(t), cmd)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := r.tr.Writes(); !slices.Equal(got, []string{"AT+CGACT=1,1", "AT+CEER"}) {
			t.Errorf("unexpected writes: %q", got)
		}
		if _, ok := rsp.Line("+CEER: "); !ok {
			t.Errorf("expected final response to be the secondary's, got %q", rsp.Text())
		}
	})

	t.Run("Skipped when primary fails", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CGACT=1,1", "ERROR").Responder())
		r.start(t)

		cmd := modem.NewCommand("activate", "AT+CGACT=1,1").Chain("AT+CEER")
		if _, err := r.ch.Exec(execCtx(t), cmd); err == nil {
			t.Fatal("expected error")
		}
		if got := r.tr.Writes(); !slices.Equal(got, []string{"AT+CGACT=1,1"}) {
			t.Errorf("unexpected writes: %q", got)
		}
	})
}

func TestChannelTimeouts(t *testing.T) {
	t.Run("Retried after timeout", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		var n atomic.Int32
		r.tr.Respond(func(cmd string) string {
			if n.Inc() == 1 {
				return ""
			}
			return "\r\nOK\r\n"
		})
		r.start(t)

		cmd := modem.NewCommand("ping", "AT")
		cmd.Timeout = 20 * time.Millisecond
		cmd.Retries = 1

		if _, err := r.ch.Exec(execCtx(t), cmd); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(r.tr.Writes()); got != 2 {
			t.Errorf("expected 2 transmissions, got %d", got)
		}
	})

	t.Run("Synthesized timeout response", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.start(t)

		cmd := modem.NewCommand("ping", "AT")
		cmd.Timeout = 10 * time.Millisecond

		rsp, err := r.ch.Exec(execCtx(t), cmd)
		if modem.ClassOf(err) != modem.ClassTimeout {
			t.Fatalf("expected timeout error, got: %v", err)
		}
		if !rsp.TimedOut {
			t.Error("expected response marked as timed out")
		}
	})

	t.Run("Per-kind default timeout", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{
			Timeouts: timeoutTable{"slow": 15 * time.Millisecond},
		})
		r.start(t)

		start := time.Now()
		_, err := r.ch.Exec(execCtx(t), modem.NewCommand("slow", "AT+COPS=?"))
		if modem.ClassOf(err) != modem.ClassTimeout {
			t.Fatalf("expected timeout error, got: %v", err)
		}
		if time.Since(start) > time.Second {
			t.Errorf("per-kind timeout not applied")
		}
	})

	t.Run("Consecutive timeouts raise modem-unresponsive", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{MaxTimeouts: 2})
		r.start(t)

		for range 2 {
			cmd := modem.NewCommand("ping", "AT")
			cmd.Timeout = 5 * time.Millisecond
			r.ch.Exec(execCtx(t), cmd)
		}

		select {
		case n := <-r.notes:
			if n.Kind != modem.NotifyModemUnresponsive {
				t.Errorf("unexpected notification %q", n.Kind)
			}
		case <-time.After(time.Second):
			t.Fatal("expected modem-unresponsive notification")
		}
	})

	t.Run("A reply resets the consecutive count", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{MaxTimeouts: 2})
		r.tr.Respond(NewReplyScript().On("AT+CGMM", "OK").Responder())
		r.start(t)

		for _, text := range []string{"AT", "AT+CGMM", "AT"} {
			cmd := modem.NewCommand("ping", text)
			cmd.Timeout = 5 * time.Millisecond
			r.ch.Exec(execCtx(t), cmd)
		}

		select {
		case n := <-r.notes:
			t.Errorf("unexpected notification %q", n.Kind)
		default:
		}
	})
}

type timeoutTable map[string]time.Duration

func (tt timeoutTable) Timeout(kind string) (time.Duration, bool) {
	d, ok := tt[kind]
	return d, ok
}

func TestChannelOrdering(t *testing.T) {
	t.Run("High priority overtakes queued work", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(func(string) string { return "\r\nOK\r\n" })

		var wg sync.WaitGroup
		for i, high := range []bool{false, false, true} {
			cmd := modem.NewCommand("ping", fmt.Sprintf("AT+C%d", i))
			cmd.HighPriority = high
			wg.Add(1)
			cmd.OnComplete = func(*modem.Command, *modem.Response) { wg.Done() }
			if err := r.ch.Enqueue(cmd); err != nil {
				t.Fatalf("unexpected enqueue error: %v", err)
			}
		}
		r.start(t)
		wg.Wait()

		want := []string{"AT+C2", "AT+C0", "AT+C1"}
		if got := r.tr.Writes(); !slices.Equal(got, want) {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("One command in flight", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(func(string) string { return "\r\nOK\r\n" })
		r.start(t)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := r.ch.Exec(execCtx(t), modem.NewCommand("ping", fmt.Sprintf("AT+C%d", i))); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := r.ch.PeakInFlight(); got != 1 {
			t.Errorf("expected at most one command in flight, got %d", got)
		}
		if got := len(r.tr.Writes()); got != 20 {
			t.Errorf("expected 20 transmissions, got %d", got)
		}
	})
}

func TestChannelRelease(t *testing.T) {
	r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
	r.tr.Respond(NewReplyScript().
		On("AT+OK", "OK").
		On("AT+FAIL", "ERROR").
		Responder())
	r.start(t)

	var blobs []*countingReleaser
	run := func(text string, timeout time.Duration) {
		b := &countingReleaser{}
		blobs = append(blobs, b)
		cmd := modem.NewCommand("ping", text)
		cmd.Context = b
		cmd.Timeout = timeout
		cmd.OnComplete = func(*modem.Command, *modem.Response) {
			if b.n.Load() != 0 {
				t.Error("context released before post-completion routine")
			}
		}
		r.ch.Exec(execCtx(t), cmd)
	}

	run("AT+OK", 0)
	run("AT+FAIL", 0)
	run("AT+SILENT", 5*time.Millisecond)

	// Stop the loop, then enqueue: rejected commands are released too.
	r.cancel()
	<-r.done
	r.done <- nil
	b := &countingReleaser{}
	blobs = append(blobs, b)
	cmd := modem.NewCommand("ping", "AT")
	cmd.Context = b
	if err := r.ch.Enqueue(cmd); !errors.Is(err, modem.ErrClosed) {
		t.Errorf("expected ErrClosed, got: %v", err)
	}

	for i, b := range blobs {
		if got := b.n.Load(); got != 1 {
			t.Errorf("blob %d released %d times", i, got)
		}
	}
}

func TestChannelStop(t *testing.T) {
	r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
	r.start(t)

	inflight := modem.NewCommand("ping", "AT+SILENT")
	inflight.Timeout = time.Minute
	queued := modem.NewCommand("ping", "AT")

	results := make(chan error, 2)
	for _, cmd := range []*modem.Command{inflight, queued} {
		cmd.OnComplete = func(_ *modem.Command, rsp *modem.Response) { results <- rsp.Err }
		r.ch.Enqueue(cmd)
	}
	waitFor(t, "command in flight", func() bool { return r.ch.InFlight() == 1 })

	r.cancel()

	var errs []error
	for range 2 {
		select {
		case err := <-results:
			errs = append(errs, err)
		case <-time.After(time.Second):
			t.Fatal("commands not completed on stop")
		}
	}
	if modem.ClassOf(errs[0]) != modem.ClassTransport || !errors.Is(errs[0], context.Canceled) {
		t.Errorf("expected in-flight command aborted, got: %v", errs[0])
	}
	if !errors.Is(errs[1], modem.ErrClosed) {
		t.Errorf("expected queued command closed, got: %v", errs[1])
	}
}

func TestChannelUnsolicited(t *testing.T) {
	var parsed atomic.Int32
	network := modem.NewSilo("network",
		modem.Entry{Prefix: "+CREG: ", Parse: func(rsp *modem.Response, rest string) error {
			parsed.Inc()
			rsp.Payload = rest
			rsp.Notify = "network-state-changed"
			return nil
		}},
		modem.Entry{Prefix: "+CIEV: ", Parse: func(rsp *modem.Response, rest string) error {
			return errors.New("bad indicator")
		}},
	)
	sms := modem.NewSilo("sms",
		modem.Entry{Prefix: "+CMT: ", Trailing: 1, Parse: func(rsp *modem.Response, rest string) error {
			rsp.Payload = rsp.Lines[1]
			rsp.Notify = "new-sms"
			return nil
		}},
	)

	t.Run("Escalated with the bound session", func(t *testing.T) {
		parsed.Store(0)
		r := newChannelRig(t, modem.ChannelConfig{ID: 2, Silos: []*modem.Silo{network}}, modem.Config{})
		r.ch.BindSession(3)
		r.start(t)

		r.tr.SendData("\r\n+CREG: 5\r\n")

		select {
		case n := <-r.notes:
			if n.Kind != "network-state-changed" || n.Silo != "network" || n.Channel != 2 || n.Session != 3 {
				t.Errorf("unexpected notification %+v", n)
			}
			if n.Payload != "5" {
				t.Errorf("expected payload %q, got %v", "5", n.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("expected notification")
		}
	})

	t.Run("Awaited reply wins over silo prefix", func(t *testing.T) {
		parsed.Store(0)
		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Silos: []*modem.Silo{network}}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CREG?", "+CREG: 2,1", "OK").Responder())
		r.start(t)

		rsp, err := r.ch.Exec(execCtx(t), modem.NewCommand("registration", "AT+CREG?"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := rsp.Line("+CREG: "); !ok {
			t.Errorf("expected +CREG in response, got %q", rsp.Text())
		}
		if parsed.Load() != 0 {
			t.Error("silo must not see the awaited reply")
		}
	})

	t.Run("Interleaved with a response", func(t *testing.T) {
		parsed.Store(0)
		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Silos: []*modem.Silo{network}}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("AT+CGMR", "REV 1.0", "+CREG: 1", "OK").Responder())
		r.start(t)

		rsp, err := r.ch.Exec(execCtx(t), modem.NewCommand("revision", "AT+CGMR"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(rsp.Text(), "+CREG") {
			t.Errorf("unsolicited line leaked into response: %q", rsp.Text())
		}
		if parsed.Load() != 1 {
			t.Errorf("expected silo to parse the unsolicited line once, got %d", parsed.Load())
		}
	})

	t.Run("Multi-line event", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Silos: []*modem.Silo{network, sms}}, modem.Config{})
		r.start(t)

		r.tr.SendData("\r\n+CMT: ,24\r\n07911326040000F0040B911346610089F60000208062917314080CC8329BFD06\r\n")

		select {
		case n := <-r.notes:
			if n.Kind != "new-sms" || !strings.HasPrefix(n.Payload.(string), "0791") {
				t.Errorf("unexpected notification %+v", n)
			}
		case <-time.After(time.Second):
			t.Fatal("expected new-sms notification")
		}
	})

	t.Run("Decode failure drops the event", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Silos: []*modem.Silo{network}}, modem.Config{})
		r.start(t)

		r.tr.SendData("\r\n+CIEV: x\r\n+CREG: 1\r\n")

		select {
		case n := <-r.notes:
			if n.Kind != "network-state-changed" {
				t.Errorf("expected only the decodable event, got %+v", n)
			}
		case <-time.After(time.Second):
			t.Fatal("expected notification")
		}
	})
}

func TestChannelMode(t *testing.T) {
	t.Run("ErrNotRunning before Run", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		if err := r.ch.SetMode(context.Background(), modem.ModeData, "rmnet0"); !errors.Is(err, modem.ErrNotRunning) {
			t.Errorf("expected ErrNotRunning, got: %v", err)
		}
	})

	t.Run("ErrNoModeSwitcher", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.start(t)
		if err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0"); !errors.Is(err, modem.ErrNoModeSwitcher) {
			t.Errorf("expected ErrNoModeSwitcher, got: %v", err)
		}
	})

	t.Run("Data mode holds the queue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sw := modem.NewMockModeSwitcher(ctrl)
		gomock.InOrder(
			sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(nil),
			sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "rmnet0").Return(nil),
		)

		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Switcher: sw, Data: true}, modem.Config{})
		r.tr.Respond(func(string) string { return "\r\nOK\r\n" })
		r.start(t)

		if err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ch.Mode() != modem.ModeData {
			t.Fatalf("expected data mode, got %v", r.ch.Mode())
		}
		if err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0"); err != nil {
			t.Errorf("same-mode switch should be a no-op, got: %v", err)
		}

		done := make(chan struct{})
		cmd := modem.NewCommand("ping", "AT")
		cmd.OnComplete = func(*modem.Command, *modem.Response) { close(done) }
		r.ch.Enqueue(cmd)

		select {
		case <-done:
			t.Fatal("command transmitted in data mode")
		case <-time.After(30 * time.Millisecond):
		}

		if err := r.ch.SetMode(execCtx(t), modem.ModeCommand, "rmnet0"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("queued command not sent after returning to command mode")
		}
		if r.tr.Flushes() != 4 {
			t.Errorf("expected input flushed around both switches, got %d flushes", r.tr.Flushes())
		}
	})

	t.Run("Refused while a command is in flight", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sw := modem.NewMockModeSwitcher(ctrl)

		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Switcher: sw}, modem.Config{})
		r.start(t)

		cmd := modem.NewCommand("ping", "AT")
		cmd.Timeout = time.Minute
		r.ch.Enqueue(cmd)
		waitFor(t, "command in flight", func() bool { return r.ch.InFlight() == 1 })

		if err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0"); !errors.Is(err, modem.ErrCommandInFlight) {
			t.Errorf("expected ErrCommandInFlight, got: %v", err)
		}
		r.tr.SendData("\r\nOK\r\n")
	})

	t.Run("CONNECT holds the channel until data mode", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sw := modem.NewMockModeSwitcher(ctrl)
		sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(nil)

		var seen atomic.Int32
		network := modem.NewSilo("network", modem.Entry{
			Prefix: "+CREG: ",
			Parse: func(rsp *modem.Response, rest string) error {
				seen.Inc()
				return nil
			},
		})
		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Switcher: sw, Silos: []*modem.Silo{network}}, modem.Config{})
		r.tr.Respond(NewReplyScript().
			On(`AT+CGDATA="M-RAW_IP",1`, "CONNECT", "+CREG: 1").
			On("AT+CSQ", "+CSQ: 20,99", "OK").
			Responder())
		r.start(t)

		enter := modem.NewCommand("enter-data", `AT+CGDATA="M-RAW_IP",1`)
		enter.EntersData = true
		if _, err := r.ch.Exec(execCtx(t), enter); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !r.ch.Held() {
			t.Fatal("expected channel held after CONNECT")
		}

		done := make(chan struct{})
		csq := modem.NewCommand("signal", "AT+CSQ")
		csq.OnComplete = func(*modem.Command, *modem.Response) { close(done) }
		r.ch.Enqueue(csq)

		select {
		case <-done:
			t.Fatal("command transmitted while held")
		case <-time.After(30 * time.Millisecond):
		}
		if got := r.tr.Writes(); !slices.Equal(got, []string{`AT+CGDATA="M-RAW_IP",1`}) {
			t.Errorf("unexpected writes %q", got)
		}
		if seen.Load() != 0 {
			t.Errorf("session bytes reached the silos %d times", seen.Load())
		}

		if err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ch.Held() || r.ch.Mode() != modem.ModeData {
			t.Errorf("expected data mode without hold, got %v held=%v", r.ch.Mode(), r.ch.Held())
		}
	})

	t.Run("Command mode request lifts the hold", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sw := modem.NewMockModeSwitcher(ctrl)

		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Switcher: sw}, modem.Config{})
		r.tr.Respond(NewReplyScript().
			On(`AT+CGDATA="M-RAW_IP",1`, "CONNECT").
			On("AT+CGACT=0,1", "OK").
			Responder())
		r.start(t)

		enter := modem.NewCommand("enter-data", `AT+CGDATA="M-RAW_IP",1`)
		enter.EntersData = true
		if _, err := r.ch.Exec(execCtx(t), enter); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := r.ch.SetMode(execCtx(t), modem.ModeCommand, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ch.Held() {
			t.Fatal("expected hold lifted")
		}
		if _, err := r.ch.Exec(execCtx(t), modem.NewCommand("deactivate", "AT+CGACT=0,1")); err != nil {
			t.Errorf("command after lifted hold failed: %v", err)
		}
	})

	t.Run("CONNECT without EntersData does not hold", func(t *testing.T) {
		r := newChannelRig(t, modem.ChannelConfig{ID: 1}, modem.Config{})
		r.tr.Respond(NewReplyScript().On("ATD*99#", "CONNECT").Responder())
		r.start(t)

		if _, err := r.ch.Exec(execCtx(t), modem.NewCommand("dial", "ATD*99#")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.ch.Held() {
			t.Error("plain CONNECT must not hold the channel")
		}
	})

	t.Run("Failed switch keeps the mode", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sw := modem.NewMockModeSwitcher(ctrl)
		sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(errors.New("ioctl failed"))

		r := newChannelRig(t, modem.ChannelConfig{ID: 1, Switcher: sw}, modem.Config{})
		r.start(t)

		err := r.ch.SetMode(execCtx(t), modem.ModeData, "rmnet0")
		if modem.ClassOf(err) != modem.ClassTransport {
			t.Errorf("expected transport error, got: %v", err)
		}
		if r.ch.Mode() != modem.ModeCommand {
			t.Errorf("expected command mode kept, got %v", r.ch.Mode())
		}
	})
}
