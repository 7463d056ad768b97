package datacall_test

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/mock/gomock"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/datacall"
	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/netif"
	"i4.energy/across/modemctl/repository"
	"i4.energy/across/modemctl/silo"
)

// script answers command lines by prefix. The first matching rule wins;
// scripting a prefix again replaces its reply.
type script struct {
	mu    sync.Mutex
	rules []*rule
}

type rule struct {
	prefix string
	reply  string
}

func (s *script) on(prefix string, lines ...string) *script {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := "\r\n" + strings.Join(lines, "\r\n") + "\r\n"
	for _, r := range s.rules {
		if r.prefix == prefix {
			r.reply = reply
			return s
		}
	}
	s.rules = append(s.rules, &rule{prefix: prefix, reply: reply})
	return s
}

func (s *script) respond(cmd string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if strings.HasPrefix(cmd, r.prefix) {
			return r.reply
		}
	}
	return ""
}

type fakeModem struct {
	data []*modem.Channel
	sim  atomic.Bool
}

func (m *fakeModem) Control() *modem.Channel        { return m.data[0] }
func (m *fakeModem) DataChannels() []*modem.Channel { return m.data }
func (m *fakeModem) SIMReady() bool                 { return m.sim.Load() }

type rig struct {
	mgr     *datacall.Manager
	modem   *fakeModem
	ch      *modem.Channel
	tr      *modem.TestTransport
	sw      *modem.MockModeSwitcher
	ifaces  *netif.MockConfigurator
	script  *script
	metrics *datacall.Metrics
	notes   chan modem.Notification
}

func newRig(t *testing.T, tag adapter.Tag) *rig {
	t.Helper()
	ctrl := gomock.NewController(t)

	r := &rig{
		tr:      modem.NewTestTransport(),
		sw:      modem.NewMockModeSwitcher(ctrl),
		ifaces:  netif.NewMockConfigurator(ctrl),
		script:  &script{},
		metrics: datacall.NewMetrics(),
		notes:   make(chan modem.Notification, 8),
	}
	r.tr.Respond(r.script.respond)
	r.ch = modem.NewChannel(modem.ChannelConfig{ID: 1, Name: "data1", Data: true, Switcher: r.sw}, r.tr, modem.Config{})
	r.modem = &fakeModem{data: []*modem.Channel{r.ch}}
	r.modem.sim.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		r.tr.Close()
	})
	require.Eventually(t, r.ch.Running, 2*time.Second, time.Millisecond)

	a, err := adapter.New(tag)
	require.NoError(t, err)

	r.mgr, err = datacall.New(datacall.Config{
		Modem:      r.modem,
		Adapter:    a,
		Interfaces: r.ifaces,
		Repository: repository.Map{},
		Metrics:    r.metrics,
		Notify:     func(n modem.Notification) { r.notes <- n },
	})
	require.NoError(t, err)
	return r
}

func (r *rig) scriptIPv4() {
	r.script.
		on(`AT+CGDCONT=1,"IPV4V6","internet"`, "OK").
		on("AT+CGACT=1,1", "OK").
		on("AT+CGPADDR=1", `+CGPADDR: 1,"10.0.0.5"`, "OK").
		on("AT+CGCONTRDP=1", `+CGCONTRDP: 1,5,"internet","10.0.0.5","10.0.0.1","8.8.8.8","8.8.4.4"`, "OK").
		on(`AT+CGDATA="M-RAW_IP",1`, "CONNECT").
		on("AT+CGACT=0,1", "OK")
}

func (r *rig) expectIPv4BringUp() {
	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(nil)
	r.ifaces.EXPECT().SetAddress("rmnet0", netip.MustParsePrefix("10.0.0.5/32")).Return(nil)
	r.ifaces.EXPECT().SetMTU("rmnet0", repository.DefaultMTU).Return(nil)
	r.ifaces.EXPECT().SetFlags("rmnet0", true, true).Return(nil)
}

func (r *rig) setupIPv4(t *testing.T) datacall.Context {
	t.Helper()
	r.scriptIPv4()
	r.expectIPv4BringUp()
	c, err := r.mgr.Setup(context.Background(), datacall.SetupRequest{APN: "internet"})
	require.NoError(t, err)
	return c
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSetupIPv4(t *testing.T) {
	r := newRig(t, adapter.Base)
	c := r.setupIPv4(t)

	assert.Equal(t, 1, c.CID)
	assert.Equal(t, datacall.StateActive, c.State)
	assert.Equal(t, "10.0.0.5", c.V4)
	assert.Equal(t, "10.0.0.1", c.Gateway)
	assert.Empty(t, c.V6)
	assert.Equal(t, []string{"8.8.8.8", "8.8.4.4"}, c.DNS4)
	assert.Equal(t, "rmnet0", c.Interface)
	assert.Equal(t, "internet", c.APN)

	assert.Equal(t, modem.ModeData, r.ch.Mode())
	assert.Equal(t, 1, r.ch.Session())
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.Active))

	assert.Equal(t, []string{
		`AT+CGDCONT=1,"IPV4V6","internet"`,
		"AT+CGACT=1,1",
		"AT+CGPADDR=1",
		"AT+CGCONTRDP=1",
		`AT+CGDATA="M-RAW_IP",1`,
	}, r.tr.Writes())

	list := r.mgr.List()
	require.Len(t, list, 1)
	assert.Equal(t, datacall.StateActive, list[0].State)
}

func TestSetupIPv4v6(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.script.
		on(`AT+CGDCONT=1,"IPV4V6","internet"`, "OK").
		on("AT+CGACT=1,1", "OK").
		on("AT+CGPADDR=1", `+CGPADDR: 1,"10.0.0.5","32.1.13.184.0.0.0.0.0.0.0.0.0.0.0.1"`, "OK").
		on("AT+CGCONTRDP=1", "ERROR").
		on(`AT+CGDATA="M-RAW_IP",1`, "CONNECT")

	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(nil)
	gomock.InOrder(
		r.ifaces.EXPECT().SetAddress("rmnet0", netip.MustParsePrefix("10.0.0.5/32")).Return(nil),
		r.ifaces.EXPECT().SetAddress("rmnet0", netip.MustParsePrefix("2001:db8::1/64")).Return(nil),
		r.ifaces.EXPECT().SetMTU("rmnet0", repository.DefaultMTU).Return(errors.New("no such device")),
		r.ifaces.EXPECT().SetIPv6DAD("rmnet0", false).Return(nil),
		r.ifaces.EXPECT().SetFlags("rmnet0", true, true).Return(nil),
		r.ifaces.EXPECT().SetAddress("rmnet0", netip.MustParsePrefix("fe80::1/64")).Return(nil),
	)

	c, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	require.NoError(t, err)
	assert.Equal(t, datacall.StateActive, c.State)
	assert.Equal(t, "2001:db8::1", c.V6)
	assert.Empty(t, c.DNS4, "dns is best-effort")
}

func TestSetupActivationCause(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.script.
		on(`AT+CGDCONT=1,"IPV4V6","bogus"`, "OK").
		on("AT+CGACT=1,1", "+CME ERROR: 148").
		on("AT+CEER", `+CEER: "SM",27,"Missing or unknown APN"`, "OK")

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "bogus"})
	require.Error(t, err)

	var se *datacall.SetupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, datacall.CauseMissingUnknownAPN, se.Cause)
	assert.Equal(t, 1, se.CID)
	assert.Equal(t, datacall.CauseMissingUnknownAPN, datacall.CauseOf(err))
	assert.Equal(t, datacall.CauseMissingUnknownAPN, r.mgr.LastFailCause())

	assert.False(t, r.mgr.Registry().Bound(1))
	assert.Equal(t, 0, r.ch.Session())
	assert.Equal(t, modem.ModeCommand, r.ch.Mode())
	assert.Empty(t, r.mgr.List())
	assert.NotContains(t, r.tr.Writes(), "AT+CGACT=0,1")
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.Failures.WithLabelValues("MISSING_UNKNOWN_APN")))
}

func TestSetupChainedCause(t *testing.T) {
	r := newRig(t, adapter.XMM6360)
	r.script.
		on("AT+CGDCONT=1,", "OK").
		on("AT+CGACT=1,1;+XDATACHANNEL=", "OK").
		on("AT+CEER", `+CEER: "SM",33,"Requested service option not subscribed"`, "OK")

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	require.Error(t, err)
	assert.Equal(t, datacall.CauseServiceOptionNotSubscribed, datacall.CauseOf(err))
	assert.False(t, r.mgr.Registry().Bound(1))
}

func TestSetupDefineRejected(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.script.on("AT+CGDCONT=", "ERROR")

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	assert.Equal(t, datacall.CauseErrorUnspecified, datacall.CauseOf(err))
	assert.False(t, r.mgr.Registry().Bound(1))
}

func TestSetupAddressAssignmentFails(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.scriptIPv4()
	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(nil)
	r.ifaces.EXPECT().SetAddress("rmnet0", gomock.Any()).Return(errors.New("permission denied"))
	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	require.Error(t, err)
	assert.Equal(t, datacall.CauseErrorUnspecified, datacall.CauseOf(err))
	assert.Equal(t, modem.ModeCommand, r.ch.Mode())
	assert.Contains(t, r.tr.Writes(), "AT+CGACT=0,1", "an activated context is deactivated on failure")
	assert.False(t, r.mgr.Registry().Bound(1))
}

func TestSetupDataSwitchFails(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.scriptIPv4()
	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeData, "rmnet0").Return(errors.New("no such device"))

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	require.Error(t, err)
	assert.False(t, r.ch.Held(), "the hold placed by CONNECT is lifted on failure")
	assert.Equal(t, modem.ModeCommand, r.ch.Mode())
	writes := r.tr.Writes()
	assert.Equal(t, "AT+CGACT=0,1", writes[len(writes)-1])
	assert.False(t, r.mgr.Registry().Bound(1))
}

func TestSetupNoFreeContext(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.setupIPv4(t)

	_, err := r.mgr.Setup(testCtx(t), datacall.SetupRequest{APN: "internet"})
	assert.ErrorIs(t, err, datacall.ErrNoFreeContext)
}

func TestTeardown(t *testing.T) {
	t.Run("never activated", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))
		assert.Empty(t, r.tr.Writes())
	})

	t.Run("unknown id", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		assert.ErrorIs(t, r.mgr.Teardown(testCtx(t), 7), datacall.ErrUnknownContext)
	})

	t.Run("active", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)

		gomock.InOrder(
			r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil),
			r.ifaces.EXPECT().Down("rmnet0").Return(nil),
		)
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))

		assert.Equal(t, "AT+CGACT=0,1", r.tr.Writes()[len(r.tr.Writes())-1])
		assert.False(t, r.mgr.Registry().Bound(1))
		assert.Equal(t, 0, r.ch.Session())
		assert.Equal(t, modem.ModeCommand, r.ch.Mode())
		assert.Equal(t, float64(0), testutil.ToFloat64(r.metrics.Active))
	})

	t.Run("deactivate rejected", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)
		r.script.on("AT+CGACT=0,1", "+CME ERROR: 100")

		r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
		r.ifaces.EXPECT().Down("rmnet0").Return(errors.New("gone"))
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))
		assert.False(t, r.mgr.Registry().Bound(1))
	})

	t.Run("sim not ready", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)
		r.modem.sim.Store(false)

		r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
		r.ifaces.EXPECT().Down("rmnet0").Return(nil)
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))

		assert.NotContains(t, r.tr.Writes(), "AT+CGACT=0,1")
		assert.False(t, r.mgr.Registry().Bound(1))
	})

	t.Run("concurrent", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)

		r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
		r.ifaces.EXPECT().Down("rmnet0").Return(nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = r.mgr.Teardown(testCtx(t), 1)
			}()
		}
		wg.Wait()

		assert.NoError(t, errors.Join(errs...))
		deactivations := 0
		for _, w := range r.tr.Writes() {
			if w == "AT+CGACT=0,1" {
				deactivations++
			}
		}
		assert.Equal(t, 1, deactivations)
		assert.False(t, r.mgr.Registry().Bound(1))
	})

	t.Run("twice", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)

		r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
		r.ifaces.EXPECT().Down("rmnet0").Return(nil)
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))
		n := len(r.tr.Writes())
		require.NoError(t, r.mgr.Teardown(testCtx(t), 1))
		assert.Len(t, r.tr.Writes(), n)
	})
}

func TestCleanupAll(t *testing.T) {
	r := newRig(t, adapter.Base)
	r.setupIPv4(t)

	r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
	r.ifaces.EXPECT().Down("rmnet0").Return(nil)
	require.NoError(t, r.mgr.CleanupAll(testCtx(t)))
	assert.Empty(t, r.mgr.List())
}

func TestHandleNotification(t *testing.T) {
	tests := []struct {
		name string
		note modem.Notification
	}{
		{"no carrier", modem.Notification{Kind: silo.NotifyNoCarrier, Channel: 1, Session: 1}},
		{"no carrier by channel", modem.Notification{Kind: silo.NotifyNoCarrier, Channel: 1}},
		{"network deactivation", modem.Notification{Kind: silo.NotifyDataCallDeactivate, Payload: `NW DEACT "IP","10.0.0.5",1`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, adapter.Base)
			r.setupIPv4(t)

			r.sw.EXPECT().SwitchMode(gomock.Any(), modem.ModeCommand, "").Return(nil)
			r.ifaces.EXPECT().Down("rmnet0").Return(nil)
			r.mgr.HandleNotification(tt.note)
			require.NoError(t, r.mgr.Wait())
			assert.False(t, r.mgr.Registry().Bound(1))

			select {
			case n := <-r.notes:
				assert.Equal(t, silo.NotifyDataCallList, n.Kind)
				assert.Empty(t, n.Payload)
			default:
				t.Fatal("expected the session list to be reported after the drop")
			}
		})
	}

	t.Run("ignored", func(t *testing.T) {
		r := newRig(t, adapter.Base)
		r.setupIPv4(t)

		r.mgr.HandleNotification(modem.Notification{Kind: silo.NotifyDataCallList, Session: 1})
		r.mgr.HandleNotification(modem.Notification{Kind: silo.NotifyDataCallDeactivate, Payload: `NW DEACT "IP","10.0.0.9",2`})
		require.NoError(t, r.mgr.Wait())
		assert.True(t, r.mgr.Registry().Bound(1))
		assert.False(t, slices.Contains(r.tr.Writes(), "AT+CGACT=0,1"))
	})
}

func TestNewRequiresDataChannels(t *testing.T) {
	a, err := adapter.New(adapter.Base)
	require.NoError(t, err)
	ctrl := gomock.NewController(t)

	_, err = datacall.New(datacall.Config{
		Modem:      &fakeModem{},
		Adapter:    a,
		Interfaces: netif.NewMockConfigurator(ctrl),
	})
	assert.Error(t, err)
}

func TestInterfacePrefixFromRepository(t *testing.T) {
	a, err := adapter.New(adapter.Base)
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	ch := modem.NewChannel(modem.ChannelConfig{ID: 3, Data: true}, modem.NewTestTransport(), modem.Config{})

	mgr, err := datacall.New(datacall.Config{
		Modem:      &fakeModem{data: []*modem.Channel{ch}},
		Adapter:    a,
		Interfaces: netif.NewMockConfigurator(ctrl),
		Repository: repository.Map{repository.GroupNetworking: {repository.KeyInterfacePrefix: "wwan"}},
	})
	require.NoError(t, err)

	c, ok := mgr.Registry().Get(1)
	require.True(t, ok)
	assert.Equal(t, "wwan0", c.Interface)
	assert.Equal(t, modem.ID(3), c.Channel)
	assert.Equal(t, datacall.StateIdle, c.State)
}
