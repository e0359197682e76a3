package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePower ON/OFF，也接受 true/false 与 1/0
func ParsePower(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "TRUE", "1":
		return true, nil
	case "OFF", "FALSE", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid power payload %q", s)
}

// ParseInput 输入口 0..2（范围由设备校验）
func ParseInput(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid input payload %q: %w", s, err)
	}
	return n, nil
}

func formatPower(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
