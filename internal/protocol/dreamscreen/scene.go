package dreamscreen

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode 设备工作模式（0 表示关机）
type Mode byte

const (
	ModeOff     Mode = 0
	ModeVideo   Mode = 1
	ModeMusic   Mode = 2
	ModeAmbient Mode = 3
)

var modeNames = [...]string{"OFF", "VIDEO", "MUSIC", "AMBIENT"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("MODE(%d)", byte(m))
}

// Powered 非 0 模式即为开机
func (m Mode) Powered() bool {
	return m != ModeOff
}

// Valid VIDEO/MUSIC/AMBIENT 之一
func (m Mode) Valid() bool {
	return m >= ModeVideo && m <= ModeAmbient
}

// ParseMode 解析模式名称（大小写不敏感）或设备值 1..3
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for i := ModeVideo; i <= ModeAmbient; i++ {
		if strings.EqualFold(s, modeNames[i]) {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Mode(n).Valid() && n <= 0xFF {
		return Mode(n), nil
	}
	return ModeOff, fmt.Errorf("invalid mode %q", s)
}

// 氛围模式类型
const (
	AmbientTypeColor byte = 0 // 纯色
	AmbientTypeScene byte = 1 // 场景
)

// Scene 场景表索引，顺序由协议固定
type Scene int

const (
	SceneColor Scene = iota
	SceneRandomColor
	SceneFireside
	SceneTwinkle
	SceneOcean
	SceneRainbow
	SceneJuly4th
	SceneHoliday
	ScenePop
	SceneEnchantedForest
)

var sceneTable = [...]struct {
	name        string
	ambientType byte
	scene       int8
}{
	{"COLOR", AmbientTypeColor, -1},
	{"RANDOM_COLOR", AmbientTypeScene, 0},
	{"FIRESIDE", AmbientTypeScene, 1},
	{"TWINKLE", AmbientTypeScene, 2},
	{"OCEAN", AmbientTypeScene, 3},
	{"RAINBOW", AmbientTypeScene, 4},
	{"JULY_4TH", AmbientTypeScene, 5},
	{"HOLIDAY", AmbientTypeScene, 6},
	{"POP", AmbientTypeScene, 7},
	{"ENCHANTED_FOREST", AmbientTypeScene, 8},
}

// Scenes 全部场景（按协议顺序）
func Scenes() []Scene {
	out := make([]Scene, len(sceneTable))
	for i := range sceneTable {
		out[i] = Scene(i)
	}
	return out
}

// Valid 是否在场景表范围内
func (s Scene) Valid() bool {
	return s >= 0 && int(s) < len(sceneTable)
}

func (s Scene) String() string {
	if s.Valid() {
		return sceneTable[s].name
	}
	return fmt.Sprintf("SCENE(%d)", int(s))
}

// AmbientModeType 场景对应的氛围类型
func (s Scene) AmbientModeType() byte {
	return sceneTable[s].ambientType
}

// AmbientScene 场景的设备值（COLOR 为 -1，即 0xFF）
func (s Scene) AmbientScene() byte {
	return byte(sceneTable[s].scene)
}

// sceneIndex 设备场景字节按有符号解释后 +1 即为表索引
func sceneIndex(ambientScene byte) (Scene, bool) {
	idx := Scene(int(int8(ambientScene)) + 1)
	return idx, idx.Valid()
}

// SceneFromDevice 由设备上报的 (ambientModeType, ambientScene) 计算场景
// 类型为 0 时恒为 COLOR；越界的场景字节返回 false，由调用方忽略
func SceneFromDevice(ambientModeType, ambientScene byte) (Scene, bool) {
	if ambientModeType == AmbientTypeColor {
		return SceneColor, true
	}
	return sceneIndex(ambientScene)
}

// SceneFromDeviceScene 仅由场景字节计算场景（Scene 消息不携带类型）
func SceneFromDeviceScene(ambientScene byte) (Scene, bool) {
	return sceneIndex(ambientScene)
}

// ParseScene 解析场景名称或表索引
func ParseScene(s string) (Scene, error) {
	s = strings.TrimSpace(s)
	for i := range sceneTable {
		if strings.EqualFold(s, sceneTable[i].name) {
			return Scene(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Scene(n).Valid() {
		return Scene(n), nil
	}
	return SceneColor, fmt.Errorf("invalid scene %q", s)
}

// RGB 三通道颜色
type RGB struct {
	R, G, B uint8
}

// Hex #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return fmt.Sprintf("%02X:%02X:%02X", c.R, c.G, c.B)
}
