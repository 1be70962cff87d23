package vo

import (
	"fmt"
	"strings"
)

// Quality is a requested quality label such as "720p", "audio", "best".
type Quality string

const (
	QualityAudio    Quality = "audio"
	QualityBest     Quality = "best"
	QualityWorst    Quality = "worst"
	QualityOriginal Quality = "original"
)

// tierHeights maps every specific label onto its video height.
var tierHeights = map[Quality]int{
	"144p":  144,
	"240p":  240,
	"360p":  360,
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
	"1440p": 1440,
	"2160p": 2160,
}

// ParseQuality 校验质量标签
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if q == "" {
		return QualityBest, nil
	}
	if q.IsAudio() || q.IsExtreme() {
		return q, nil
	}
	if _, ok := tierHeights[q]; ok {
		return q, nil
	}
	return "", fmt.Errorf("unsupported quality %q", s)
}

func (q Quality) String() string { return string(q) }

func (q Quality) IsAudio() bool { return q == QualityAudio }

// IsExtreme reports best/worst/original which pick an end of the tier range.
func (q Quality) IsExtreme() bool {
	return q == QualityBest || q == QualityWorst || q == QualityOriginal
}

// Height returns the target height for a specific tier, 0 otherwise.
func (q Quality) Height() int {
	return tierHeights[q]
}

// LabelForHeight 根据高度返回展示用的清晰度标签
func LabelForHeight(height int) string {
	switch {
	case height >= 2160:
		return "2160p"
	case height >= 1440:
		return "1440p"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	case height >= 480:
		return "480p"
	case height >= 360:
		return "360p"
	case height >= 240:
		return "240p"
	default:
		return "144p"
	}
}

// EncodePreset selects encoder effort for conversions.
type EncodePreset string

const (
	PresetHigh   EncodePreset = "high"
	PresetMedium EncodePreset = "medium"
	PresetLow    EncodePreset = "low"
)

// EncoderSettings are the ffmpeg knobs behind a preset.
type EncoderSettings struct {
	CRF          int
	Speed        string
	AudioBitrate string
}

var presetSettings = map[EncodePreset]EncoderSettings{
	PresetHigh:   {CRF: 18, Speed: "slow", AudioBitrate: "320k"},
	PresetMedium: {CRF: 23, Speed: "medium", AudioBitrate: "192k"},
	PresetLow:    {CRF: 28, Speed: "fast", AudioBitrate: "128k"},
}

// ParseEncodePreset falls back to medium for empty input.
func ParseEncodePreset(s string) (EncodePreset, error) {
	p := EncodePreset(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PresetMedium, nil
	}
	if _, ok := presetSettings[p]; !ok {
		return "", fmt.Errorf("unsupported preset %q", s)
	}
	return p, nil
}

// Settings 返回预设对应的编码参数
func (p EncodePreset) Settings() EncoderSettings {
	if s, ok := presetSettings[p]; ok {
		return s
	}
	return presetSettings[PresetMedium]
}
