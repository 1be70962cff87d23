package vo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MediaInfo 源媒体元数据
type MediaInfo struct {
	Title      string
	Uploader   string
	Thumbnail  string
	Duration   float64
	Width      int
	Height     int
	FrameRate  FrameRate
	VideoCodec string
	AudioCodec string
	Variants   []Variant
}

// UnknownFrameRate is returned when a rate string cannot be parsed.
var UnknownFrameRate = FrameRate{}

// FrameRate is a rational frames-per-second value.
type FrameRate struct {
	Num int64
	Den int64
}

// IsKnown reports a usable rate.
func (f FrameRate) IsKnown() bool { return f.Num > 0 && f.Den > 0 }

// FPS returns frames per second, 0 for unknown.
func (f FrameRate) FPS() float64 {
	if !f.IsKnown() {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

func (f FrameRate) String() string {
	if !f.IsKnown() {
		return "unknown"
	}
	fps := f.FPS()
	if fps == math.Trunc(fps) {
		return strconv.FormatFloat(fps, 'f', 0, 64)
	}
	return strconv.FormatFloat(fps, 'f', 2, 64)
}

// ParseFrameRate 解析 "30000/1001"、"25" 或 "29.97" 形式的帧率.
// Anything else, including zero denominators, yields UnknownFrameRate.
func ParseFrameRate(s string) FrameRate {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownFrameRate
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
		d, err2 := strconv.ParseInt(strings.TrimSpace(den), 10, 64)
		if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
			return UnknownFrameRate
		}
		return FrameRate{Num: n, Den: d}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return UnknownFrameRate
		}
		return FrameRate{Num: n, Den: 1}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return UnknownFrameRate
	}
	return FrameRate{Num: int64(math.Round(v * 1000)), Den: 1000}
}

// Resolution renders "WxH" or "unknown".
func (m MediaInfo) Resolution() string {
	if m.Width <= 0 || m.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}
