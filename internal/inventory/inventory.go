package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/taoyao-code/dreamscreen-gateway/internal/config"
	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
)

// Entry 校验后的设备声明
type Entry struct {
	Serial uint32
	Kind   device.Kind
	Name   string
}

// File 清单文件结构
//
//	devices:
//	  - serial: 12345
//	    kind: 4k
//	    name: Living Room
type File struct {
	Devices []cfgpkg.DeviceEntry `yaml:"devices"`
}

// Registrar 注册设备的能力（由 registry 实现）
type Registrar interface {
	Register(ctx context.Context, serial uint32, kind device.Kind, name string) (*device.Device, error)
}

// Load 读取并校验 YAML 清单
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal inventory: %w", err)
	}
	return Validate(f.Devices)
}

// Validate 解析机型并检查序列号重复
func Validate(raw []cfgpkg.DeviceEntry) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	seen := make(map[uint32]struct{}, len(raw))
	for i, r := range raw {
		if r.Serial == 0 {
			return nil, fmt.Errorf("device #%d: serial is required", i)
		}
		kind, err := device.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", r.Serial, err)
		}
		if _, dup := seen[r.Serial]; dup {
			return nil, fmt.Errorf("device %d: duplicate serial", r.Serial)
		}
		seen[r.Serial] = struct{}{}
		out = append(out, Entry{Serial: r.Serial, Kind: kind, Name: r.Name})
	}
	return out, nil
}

// Collect 合并配置内联设备与清单文件；同一序列号以内联声明为准
func Collect(cfg *cfgpkg.Config, logger *zap.Logger) ([]Entry, error) {
	inline, err := Validate(cfg.Devices)
	if err != nil {
		return nil, err
	}
	if cfg.Inventory.Path == "" {
		return inline, nil
	}
	fromFile, err := Load(cfg.Inventory.Path)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]struct{}, len(inline))
	for _, e := range inline {
		seen[e.Serial] = struct{}{}
	}
	for _, e := range fromFile {
		if _, ok := seen[e.Serial]; ok {
			logger.Warn("inventory entry shadowed by inline device", zap.Uint32("serial", e.Serial))
			continue
		}
		inline = append(inline, e)
	}
	return inline, nil
}

// Apply 逐个注册设备，返回成功数量；单台失败不影响其余设备
func Apply(ctx context.Context, reg Registrar, entries []Entry, logger *zap.Logger) (int, error) {
	var errs []error
	n := 0
	for _, e := range entries {
		if _, err := reg.Register(ctx, e.Serial, e.Kind, e.Name); err != nil {
			logger.Error("register device failed", zap.Uint32("serial", e.Serial), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
