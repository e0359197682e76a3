package device

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
)

// 所有命令在持锁期间立即发送，后续步骤通过延迟发送完成
// 协议没有应答，返回 nil 只代表已发出

func (d *Device) beginCommand() error {
	if d.closed {
		return ErrClosed
	}
	if !d.addr.IsValid() {
		return ErrNotLinked
	}
	return nil
}

// SetPower 开机恢复上次的工作模式，关机发送模式 0
func (d *Device) SetPower(on bool) error {
	var out batch
	d.mu.Lock()
	err := d.beginCommand()
	if err == nil {
		mode := dreamscreen.ModeOff
		if on {
			mode = d.powerOnMode
		}
		d.logger.Debug("changing power", zap.Bool("on", on), zap.Stringer("mode", mode))
		err = d.sendLocked(dreamscreen.WriteFrame(dreamscreen.ModeMessage{Group: d.group, Mode: mode}), &out)
	}
	d.mu.Unlock()
	d.emit(out)
	return err
}

// SetMode 仅在开机状态下切换模式
func (d *Device) SetMode(mode dreamscreen.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, byte(mode))
	}
	var out batch
	d.mu.Lock()
	err := d.beginCommand()
	if err == nil && !d.mode.Powered() {
		err = ErrPoweredOff
	}
	if err == nil {
		d.logger.Debug("changing mode", zap.Stringer("mode", mode))
		err = d.sendLocked(dreamscreen.WriteFrame(dreamscreen.ModeMessage{Group: d.group, Mode: mode}), &out)
	}
	d.mu.Unlock()
	d.emit(out)
	return err
}

// SetScene 设备只有在模式与氛围类型都匹配后才接受场景值：
// 非氛围模式先切到 AMBIENT，类型不符先切类型，两种情况都记为待定场景
func (d *Device) SetScene(scene dreamscreen.Scene) error {
	if !scene.Valid() {
		return fmt.Errorf("%w: scene %d", ErrInvalidArgument, int(scene))
	}
	var out batch
	d.mu.Lock()
	err := d.beginCommand()
	if err == nil {
		d.logger.Debug("changing scene", zap.Stringer("scene", scene))
		var msg dreamscreen.Message
		switch {
		case d.mode != dreamscreen.ModeAmbient:
			d.pending = &scene
			msg = dreamscreen.ModeMessage{Group: d.group, Mode: dreamscreen.ModeAmbient}
		case scene.AmbientModeType() != d.ambientModeType:
			d.pending = &scene
			msg = dreamscreen.AmbientModeTypeMessage{Group: d.group, Type: scene.AmbientModeType()}
		default:
			d.pending = nil
			msg = dreamscreen.SceneMessage{Group: d.group, Scene: scene.AmbientScene()}
		}
		err = d.sendLocked(dreamscreen.WriteFrame(msg), &out)
	}
	d.mu.Unlock()
	d.emit(out)
	return err
}

// SetColor 颜色立即写入；若设备不在纯色氛围下，再延迟切换模式或氛围类型
func (d *Device) SetColor(c dreamscreen.RGB) error {
	var out batch
	d.mu.Lock()
	err := d.beginCommand()
	if err == nil {
		d.logger.Debug("changing color", zap.Stringer("color", c))
		err = d.sendLocked(dreamscreen.WriteFrame(dreamscreen.ColorMessage{Group: d.group, Color: c}), &out)
		if err != nil {
			d.pending = nil
		} else {
			color := dreamscreen.SceneColor
			switch {
			case d.mode != dreamscreen.ModeAmbient:
				d.pending = &color
				d.delayedLocked(dreamscreen.WriteFrame(dreamscreen.ModeMessage{Group: d.group, Mode: dreamscreen.ModeAmbient}))
			case d.ambientModeType != color.AmbientModeType():
				d.pending = &color
				d.delayedLocked(dreamscreen.WriteFrame(dreamscreen.AmbientModeTypeMessage{Group: d.group, Type: color.AmbientModeType()}))
			}
		}
	}
	d.mu.Unlock()
	d.emit(out)
	return err
}

// SetInput 切换 HDMI 输入口（仅 TV 机型，0..2）
func (d *Device) SetInput(input int) error {
	if !d.cfg.Kind.TV() {
		return ErrUnsupported
	}
	if input < 0 || input > 2 {
		return fmt.Errorf("%w: input %d", ErrInvalidArgument, input)
	}
	var out batch
	d.mu.Lock()
	err := d.beginCommand()
	if err == nil {
		d.logger.Debug("changing input", zap.Int("input", input))
		err = d.sendLocked(dreamscreen.WriteFrame(dreamscreen.InputMessage{Group: d.group, Input: byte(input)}), &out)
	}
	d.mu.Unlock()
	d.emit(out)
	return err
}

// RequestRefresh 请求设备上报状态，1 秒内重复请求被抑制
// 未绑定时广播 Scan 触发发现；已绑定时单播 Refresh 读请求
// 返回是否实际发出
func (d *Device) RequestRefresh() (bool, error) {
	var out batch
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.emit(out)
	}()

	if d.closed {
		return false, ErrClosed
	}
	if !d.limiter.AllowN(d.now(), 1) {
		return false, nil
	}
	if !d.addr.IsValid() {
		if err := d.sender.Broadcast(dreamscreen.WriteFrame(dreamscreen.NewScan())); err != nil {
			d.logger.Error("scan broadcast failed", zap.Error(err))
			return false, fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		return true, nil
	}
	if err := d.sendLocked(dreamscreen.ReadFrame(dreamscreen.NewRefreshRequest()), &out); err != nil {
		return false, err
	}
	return true, nil
}
