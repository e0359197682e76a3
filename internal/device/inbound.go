package device

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/events"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

// HandleMessage 应用设备上报的状态，在接收协程上同步执行，不阻塞
// 来源地址不是本设备的消息被拒绝；返回消息是否被本设备接受
func (d *Device) HandleMessage(from netip.Addr, m dreamscreen.Message) bool {
	var out batch
	d.mu.Lock()
	accepted := false
	if !d.closed && d.addr.IsValid() && from == d.addr {
		accepted = d.applyLocked(m, &out)
	}
	d.mu.Unlock()
	d.emit(out)
	return accepted
}

func (d *Device) applyLocked(m dreamscreen.Message, out *batch) bool {
	switch msg := m.(type) {
	case dreamscreen.RefreshTvMessage:
		if !d.cfg.Kind.TV() || msg.ProductID != d.cfg.Kind.ProductID() {
			return false
		}
		d.refreshLocked(msg.RefreshMessage, out)
		d.inputLocked(msg.Input, out)
		d.inputNames = msg.InputNames
		out.add(events.TypeInputNamesChanged, d.cfg.Serial, map[string]any{
			"value": append([]string(nil), msg.InputNames[:]...),
		})
	case dreamscreen.RefreshMessage:
		if msg.ProductID != d.cfg.Kind.ProductID() {
			return false
		}
		d.refreshLocked(msg, out)
	case dreamscreen.ModeMessage:
		return d.modeMsgLocked(msg.Mode, out)
	case dreamscreen.AmbientModeTypeMessage:
		d.ambientModeTypeLocked(msg.Type, out)
	case dreamscreen.SceneMessage:
		scene, ok := dreamscreen.SceneFromDeviceScene(msg.Scene)
		if !ok {
			d.logger.Debug("ignoring out-of-range scene", zap.Int8("scene", int8(msg.Scene)))
			return false
		}
		d.onlineLocked(out)
		d.ambientModeType = scene.AmbientModeType()
		d.ambientScene = scene.AmbientScene()
		d.pending = nil
		d.sceneChangedLocked(scene, out)
	case dreamscreen.ColorMessage:
		d.onlineLocked(out)
		d.colorLocked(msg.Color, out)
	case dreamscreen.InputMessage:
		if !d.cfg.Kind.TV() {
			return false
		}
		d.onlineLocked(out)
		d.inputLocked(msg.Input, out)
	default:
		return false
	}
	return true
}

// refreshLocked Refresh 不携带氛围类型，采纳后延迟读取一次
func (d *Device) refreshLocked(msg dreamscreen.RefreshMessage, out *batch) {
	d.onlineLocked(out)
	d.reportedName = msg.Name
	d.group = msg.DeviceGroup
	d.modeLocked(msg.Mode, out)
	d.colorLocked(msg.Color, out)
	if _, ok := dreamscreen.SceneFromDeviceScene(msg.AmbientScene); ok {
		d.ambientScene = msg.AmbientScene
	} else {
		d.logger.Debug("ignoring out-of-range scene in refresh", zap.Int8("scene", int8(msg.AmbientScene)))
	}
	d.delayedLocked(dreamscreen.ReadFrame(dreamscreen.AmbientModeTypeMessage{Group: d.group, Type: d.ambientModeType}))
}

func (d *Device) modeMsgLocked(mode dreamscreen.Mode, out *batch) bool {
	if mode.Powered() && !mode.Valid() {
		d.logger.Debug("ignoring unknown mode", zap.Uint8("mode", byte(mode)))
		return false
	}
	d.onlineLocked(out)
	d.modeLocked(mode, out)
	if mode == dreamscreen.ModeAmbient && d.pending != nil {
		d.delayedLocked(dreamscreen.WriteFrame(dreamscreen.AmbientModeTypeMessage{Group: d.group, Type: d.pending.AmbientModeType()}))
	}
	return true
}

// modeLocked 非 0 的有效模式同时成为开机恢复模式
func (d *Device) modeLocked(mode dreamscreen.Mode, out *batch) {
	if mode.Powered() && !mode.Valid() {
		return
	}
	d.mode = mode
	out.add(events.TypePowerChanged, d.cfg.Serial, map[string]any{"value": mode.Powered()})
	if mode.Valid() {
		d.powerOnMode = mode
		out.add(events.TypeModeChanged, d.cfg.Serial, map[string]any{"value": mode.String()})
	}
}

// ambientModeTypeLocked 类型与待定场景一致时完成最后一步，之后总是清除待定场景
func (d *Device) ambientModeTypeLocked(t byte, out *batch) {
	d.onlineLocked(out)
	d.ambientModeType = t

	if p := d.pending; p != nil && p.AmbientModeType() == t {
		if *p == dreamscreen.SceneColor {
			d.sceneChangedLocked(dreamscreen.SceneColor, out)
		} else {
			d.delayedLocked(dreamscreen.WriteFrame(dreamscreen.SceneMessage{Group: d.group, Scene: p.AmbientScene()}))
		}
	} else if scene, ok := dreamscreen.SceneFromDevice(t, d.ambientScene); ok {
		d.sceneChangedLocked(scene, out)
	}
	d.pending = nil
}

func (d *Device) sceneChangedLocked(scene dreamscreen.Scene, out *batch) {
	out.add(events.TypeSceneChanged, d.cfg.Serial, map[string]any{"value": scene.String()})
}

func (d *Device) colorLocked(c dreamscreen.RGB, out *batch) {
	d.color = c
	out.add(events.TypeColorChanged, d.cfg.Serial, map[string]any{
		"value": c.Hex(),
		"r":     c.R,
		"g":     c.G,
		"b":     c.B,
	})
}

func (d *Device) inputLocked(input byte, out *batch) {
	d.input = input
	out.add(events.TypeInputChanged, d.cfg.Serial, map[string]any{"value": int(input)})
}
