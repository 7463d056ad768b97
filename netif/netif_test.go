package netif_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/netif"
)

func TestMuxSwitcher(t *testing.T) {
	ctrl := gomock.NewController(t)
	mux := netif.NewMockMuxControl(ctrl)
	s := &netif.MuxSwitcher{Device: "/dev/gsmtty3", Control: mux}
	ctx := context.Background()

	mux.EXPECT().EnableNet("/dev/gsmtty3", "rmnet0").Return(7, nil)
	require.NoError(t, s.SwitchMode(ctx, modem.ModeData, "rmnet0"))

	mux.EXPECT().DisableNet("/dev/gsmtty3").Return(nil)
	require.NoError(t, s.SwitchMode(ctx, modem.ModeCommand, "rmnet0"))

	boom := errors.New("EBUSY")
	mux.EXPECT().EnableNet("/dev/gsmtty3", "rmnet1").Return(0, boom)
	assert.ErrorIs(t, s.SwitchMode(ctx, modem.ModeData, "rmnet1"), boom)

	assert.Error(t, s.SwitchMode(ctx, modem.ModeData, ""))
	assert.Error(t, s.SwitchMode(ctx, modem.Mode(9), "rmnet0"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.SwitchMode(cancelled, modem.ModeData, "rmnet0"), context.Canceled)
}
