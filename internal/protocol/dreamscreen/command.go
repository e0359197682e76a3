package dreamscreen

import "fmt"

// Command 命令对 (upper, lower)
type Command struct {
	Upper byte
	Lower byte
}

// 已知命令
var (
	CmdRefresh         = Command{0x01, 0x0A}
	CmdSerialNumber    = Command{0x01, 0x03} // Scan 请求与 SerialNumber 响应共用
	CmdMode            = Command{0x03, 0x01}
	CmdColor           = Command{0x03, 0x05}
	CmdAmbientModeType = Command{0x03, 0x08}
	CmdScene           = Command{0x03, 0x0D}
	CmdInput           = Command{0x03, 0x20}
)

var commandNames = map[Command]string{
	CmdRefresh:         "refresh",
	CmdSerialNumber:    "serial_number",
	CmdMode:            "mode",
	CmdColor:           "color",
	CmdAmbientModeType: "ambient_mode_type",
	CmdScene:           "scene",
	CmdInput:           "input",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X%02X", c.Upper, c.Lower)
}

// Known 是否为已知命令
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}
