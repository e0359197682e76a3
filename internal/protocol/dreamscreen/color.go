package dreamscreen

import (
	"fmt"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBFromHSB 色相 0-360，饱和度与亮度 0-100
func RGBFromHSB(h, s, b float64) (RGB, error) {
	if h < 0 || h > 360 || s < 0 || s > 100 || b < 0 || b > 100 {
		return RGB{}, fmt.Errorf("hsb out of range: %g,%g,%g", h, s, b)
	}
	if h == 360 {
		h = 0
	}
	r, g, bl := colorful.Hsv(h, s/100, b/100).Clamped().RGB255()
	return RGB{R: r, G: g, B: bl}, nil
}

// RGBFromHex 解析 #rrggbb 或 #rgb
func RGBFromHex(s string) (RGB, error) {
	c, err := colorful.Hex(strings.TrimSpace(s))
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

// HSB 转回色相/饱和度/亮度（用于状态展示）
func (c RGB) HSB() (h, s, b float64) {
	h, s, v := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hsv()
	return h, s * 100, v * 100
}

// ParseColor 解析文本颜色：
//
//	#rrggbb       十六进制
//	r,g,b         0-255 三通道
//	hsb:h,s,b     色相 0-360，饱和度/亮度 0-100
func ParseColor(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		return RGBFromHex(s)
	case strings.HasPrefix(strings.ToLower(s), "hsb:"):
		v, err := splitFloats(s[4:])
		if err != nil {
			return RGB{}, err
		}
		return RGBFromHSB(v[0], v[1], v[2])
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid colour %q", s)
	}
	var out [3]uint8
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
		}
		out[i] = uint8(n)
	}
	return RGB{R: out[0], G: out[1], B: out[2]}, nil
}

func splitFloats(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("expected three components, got %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid component %q: %w", p, err)
		}
		out[i] = f
	}
	return out, nil
}
