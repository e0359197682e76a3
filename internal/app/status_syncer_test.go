package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
)

type fakeDevices struct {
	refreshes atomic.Int32
	online    atomic.Int32
}

func (f *fakeDevices) RequestRefreshAll() { f.refreshes.Add(1) }
func (f *fakeDevices) Len() int           { return 3 }
func (f *fakeDevices) OnlineCount() int   { return int(f.online.Load()) }

func TestStatusSyncer_Handle(t *testing.T) {
	_, appm := NewMetrics()
	devs := &fakeDevices{}
	s := NewStatusSyncer(devs, 0, appm, zap.NewNop())

	devs.online.Store(2)
	assert.NoError(t, s.Handle(context.Background(), events.New(events.TypeModeChanged, 1, nil)))
	assert.Equal(t, 0.0, testutil.ToFloat64(appm.DevicesOnline), "非状态事件不刷新")

	assert.NoError(t, s.Handle(context.Background(), events.New(events.TypeDeviceStatus, 1, nil)))
	assert.Equal(t, 2.0, testutil.ToFloat64(appm.DevicesOnline))
}

func TestStatusSyncer_Periodic(t *testing.T) {
	_, appm := NewMetrics()
	devs := &fakeDevices{}
	devs.online.Store(1)
	s := NewStatusSyncer(devs, 5*time.Millisecond, appm, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return devs.refreshes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 1.0, testutil.ToFloat64(appm.DevicesOnline))
}

func TestStatusSyncer_Disabled(t *testing.T) {
	devs := &fakeDevices{}
	s := NewStatusSyncer(devs, 0, nil, zap.NewNop())
	s.Start(context.Background())
	assert.Zero(t, devs.refreshes.Load())
	assert.NoError(t, s.Handle(context.Background(), events.New(events.TypeDeviceStatus, 1, nil)))
}
