package health

import "sync/atomic"

// Readiness 启动阶段的就绪标志
type Readiness struct {
	transportReady atomic.Bool
	devicesLoaded  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetTransportReady(v bool) { r.transportReady.Store(v) }
func (r *Readiness) SetDevicesLoaded(v bool)  { r.devicesLoaded.Store(v) }

// Ready 设备清单已应用且传输层已启动
func (r *Readiness) Ready() bool {
	return r.devicesLoaded.Load() && r.transportReady.Load()
}
