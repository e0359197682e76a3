package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/dreamscreen-gateway/internal/device"
	"github.com/taoyao-code/dreamscreen-gateway/internal/protocol/dreamscreen"
	"github.com/taoyao-code/dreamscreen-gateway/internal/registry"
)

// errBadRequest 请求体或路径参数无效
var errBadRequest = errors.New("bad request")

// DeviceRegistry 处理器依赖的注册表能力
type DeviceRegistry interface {
	Register(ctx context.Context, serial uint32, kind device.Kind, name string) (*device.Device, error)
	Deregister(serial uint32) error
	Get(serial uint32) (*device.Device, bool)
	List() []*device.Device
}

// DeviceHandler 设备管理与能力命令
type DeviceHandler struct {
	reg    DeviceRegistry
	logger *zap.Logger
}

// NewDeviceHandler 创建处理器
func NewDeviceHandler(reg DeviceRegistry, logger *zap.Logger) *DeviceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceHandler{reg: reg, logger: logger}
}

// RegisterDeviceRequest 注册设备
type RegisterDeviceRequest struct {
	Serial uint32 `json:"serial" binding:"required" example:"12345"`
	Kind   string `json:"kind" binding:"required" example:"4k"`
	Name   string `json:"name" example:"Living Room"`
}

// PowerRequest 开关机
type PowerRequest struct {
	On *bool `json:"on" binding:"required"`
}

// ModeRequest VIDEO / MUSIC / AMBIENT
type ModeRequest struct {
	Mode string `json:"mode" binding:"required" example:"AMBIENT"`
}

// SceneRequest 场景名称或索引
type SceneRequest struct {
	Scene string `json:"scene" binding:"required" example:"FIRESIDE"`
}

// ColorRequest 三选一：r/g/b、hex、hue/saturation/brightness
type ColorRequest struct {
	R          *int     `json:"r,omitempty"`
	G          *int     `json:"g,omitempty"`
	B          *int     `json:"b,omitempty"`
	Hex        string   `json:"hex,omitempty" example:"#ff8000"`
	Hue        *float64 `json:"hue,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// InputRequest HDMI 输入口 0..2
type InputRequest struct {
	Input *int `json:"input" binding:"required"`
}

// AcceptedResponse 命令已发出（协议没有应答）
type AcceptedResponse struct {
	Serial   uint32 `json:"serial"`
	Accepted bool   `json:"accepted"`
	Sent     *bool  `json:"sent,omitempty"`
}

// ListDevices 设备列表
// @Summary 设备列表
// @Tags devices
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string][]device.State
// @Router /api/devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	list := h.reg.List()
	states := make([]device.State, 0, len(list))
	for _, d := range list {
		states = append(states, d.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{"devices": states})
}

// GetDevice 单个设备状态
// @Summary 设备状态
// @Tags devices
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Success 200 {object} device.State
// @Failure 404 {object} map[string]string
// @Router /api/devices/{serial} [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	d, ok := h.device(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.Snapshot())
}

// RegisterDevice 注册设备
// @Summary 注册设备
// @Tags devices
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body RegisterDeviceRequest true "设备"
// @Success 201 {object} device.State
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/devices [post]
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	kind, err := device.ParseKind(req.Kind)
	if err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	d, err := h.reg.Register(c.Request.Context(), req.Serial, kind, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("device registered via api", zap.Uint32("serial", req.Serial))
	c.JSON(http.StatusCreated, d.Snapshot())
}

// DeleteDevice 注销设备
// @Summary 注销设备
// @Tags devices
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/devices/{serial} [delete]
func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	serial, ok := parseSerial(c)
	if !ok {
		return
	}
	if err := h.reg.Deregister(serial); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetPower 开关机
// @Summary 开关机
// @Tags commands
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Param body body PowerRequest true "on"
// @Success 202 {object} AcceptedResponse
// @Router /api/devices/{serial}/power [post]
func (h *DeviceHandler) SetPower(c *gin.Context) {
	var req PowerRequest
	h.command(c, &req, func(d *device.Device) error { return d.SetPower(*req.On) })
}

// SetMode 切换模式
// @Summary 切换模式
// @Tags commands
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Param body body ModeRequest true "mode"
// @Success 202 {object} AcceptedResponse
// @Failure 409 {object} map[string]string "关机或未绑定"
// @Router /api/devices/{serial}/mode [post]
func (h *DeviceHandler) SetMode(c *gin.Context) {
	var req ModeRequest
	h.command(c, &req, func(d *device.Device) error {
		mode, err := dreamscreen.ParseMode(req.Mode)
		if err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return d.SetMode(mode)
	})
}

// SetScene 切换氛围场景
// @Summary 切换场景
// @Tags commands
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Param body body SceneRequest true "scene"
// @Success 202 {object} AcceptedResponse
// @Router /api/devices/{serial}/scene [post]
func (h *DeviceHandler) SetScene(c *gin.Context) {
	var req SceneRequest
	h.command(c, &req, func(d *device.Device) error {
		scene, err := dreamscreen.ParseScene(req.Scene)
		if err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return d.SetScene(scene)
	})
}

// SetColor 设置氛围颜色
// @Summary 设置颜色
// @Tags commands
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Param body body ColorRequest true "color"
// @Success 202 {object} AcceptedResponse
// @Router /api/devices/{serial}/color [post]
func (h *DeviceHandler) SetColor(c *gin.Context) {
	var req ColorRequest
	h.command(c, &req, func(d *device.Device) error {
		rgb, err := req.rgb()
		if err != nil {
			return fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return d.SetColor(rgb)
	})
}

// SetInput 切换 HDMI 输入
// @Summary 切换输入口
// @Tags commands
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Param body body InputRequest true "input"
// @Success 202 {object} AcceptedResponse
// @Failure 400 {object} map[string]string "Sidekick 不支持"
// @Router /api/devices/{serial}/input [post]
func (h *DeviceHandler) SetInput(c *gin.Context) {
	var req InputRequest
	h.command(c, &req, func(d *device.Device) error { return d.SetInput(*req.Input) })
}

// Refresh 请求状态刷新（每秒最多一次）
// @Summary 请求状态刷新
// @Tags commands
// @Produce json
// @Security ApiKeyAuth
// @Param serial path int true "序列号"
// @Success 202 {object} AcceptedResponse
// @Router /api/devices/{serial}/refresh [post]
func (h *DeviceHandler) Refresh(c *gin.Context) {
	d, ok := h.device(c)
	if !ok {
		return
	}
	sent, err := d.RequestRefresh()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Serial: d.Serial(), Accepted: true, Sent: &sent})
}

// command 解析路径与请求体后执行命令
func (h *DeviceHandler) command(c *gin.Context, req any, run func(d *device.Device) error) {
	d, ok := h.device(c)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := run(d); err != nil {
		h.logger.Debug("command rejected",
			zap.Uint32("serial", d.Serial()),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Serial: d.Serial(), Accepted: true})
}

func (h *DeviceHandler) device(c *gin.Context) (*device.Device, bool) {
	serial, ok := parseSerial(c)
	if !ok {
		return nil, false
	}
	d, found := h.reg.Get(serial)
	if !found {
		writeError(c, fmt.Errorf("%w: %d", registry.ErrDeviceNotFound, serial))
		return nil, false
	}
	return d, true
}

func parseSerial(c *gin.Context) (uint32, bool) {
	n, err := strconv.ParseUint(c.Param("serial"), 10, 32)
	if err != nil {
		writeError(c, fmt.Errorf("%w: invalid serial %q", errBadRequest, c.Param("serial")))
		return 0, false
	}
	return uint32(n), true
}

func (r ColorRequest) rgb() (dreamscreen.RGB, error) {
	switch {
	case r.Hex != "":
		return dreamscreen.RGBFromHex(r.Hex)
	case r.Hue != nil || r.Saturation != nil || r.Brightness != nil:
		if r.Hue == nil || r.Saturation == nil || r.Brightness == nil {
			return dreamscreen.RGB{}, errors.New("hue, saturation and brightness are all required")
		}
		return dreamscreen.RGBFromHSB(*r.Hue, *r.Saturation, *r.Brightness)
	case r.R != nil && r.G != nil && r.B != nil:
		var out [3]uint8
		for i, v := range []int{*r.R, *r.G, *r.B} {
			if v < 0 || v > 255 {
				return dreamscreen.RGB{}, fmt.Errorf("channel out of range: %d", v)
			}
			out[i] = uint8(v)
		}
		return dreamscreen.RGB{R: out[0], G: out[1], B: out[2]}, nil
	}
	return dreamscreen.RGB{}, errors.New("colour requires r/g/b, hex, or hue/saturation/brightness")
}
