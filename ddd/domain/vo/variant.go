package vo

import "strings"

// Variant is one entry of a source's format catalog.
type Variant struct {
	ID       string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	VCodec   string  `json:"vcodec"`
	ACodec   string  `json:"acodec"`
	ABR      float64 `json:"abr"`
	VBR      float64 `json:"vbr"`
	TBR      float64 `json:"tbr"`
	Filesize int64   `json:"filesize"`
}

func hasCodec(c string) bool {
	c = strings.TrimSpace(strings.ToLower(c))
	return c != "" && c != "none"
}

// HasVideo reports a video stream.
func (v Variant) HasVideo() bool { return hasCodec(v.VCodec) }

// HasAudio reports an audio stream.
func (v Variant) HasAudio() bool { return hasCodec(v.ACodec) }

// IsCombined carries both audio and video.
func (v Variant) IsCombined() bool { return v.HasVideo() && v.HasAudio() }

// IsAudioOnly carries audio without video.
func (v Variant) IsAudioOnly() bool { return v.HasAudio() && !v.HasVideo() }

// IsVideoOnly carries video without audio.
func (v Variant) IsVideoOnly() bool { return v.HasVideo() && !v.HasAudio() }

// Bitrate returns the best known overall bitrate.
func (v Variant) Bitrate() float64 {
	switch {
	case v.TBR > 0:
		return v.TBR
	case v.VBR+v.ABR > 0:
		return v.VBR + v.ABR
	default:
		return 0
	}
}

// VideoBitrate falls back to the overall bitrate when vbr is missing.
func (v Variant) VideoBitrate() float64 {
	if v.VBR > 0 {
		return v.VBR
	}
	return v.Bitrate()
}

// AudioBitrate falls back to the overall bitrate for audio-only variants.
func (v Variant) AudioBitrate() float64 {
	if v.ABR > 0 {
		return v.ABR
	}
	if v.IsAudioOnly() {
		return v.TBR
	}
	return 0
}
