package vo

import "strings"

// JobKind 作业类型
type JobKind string

const (
	// JobKindDownload fetches a remote media source.
	JobKindDownload JobKind = "download"
	// JobKindConversion transcodes an uploaded file.
	JobKindConversion JobKind = "conversion"
)

func (k JobKind) IsValid() bool {
	return k == JobKindDownload || k == JobKindConversion
}

func (k JobKind) String() string { return string(k) }

// MediaCategory groups output formats by what they carry.
type MediaCategory string

const (
	CategoryVideo MediaCategory = "video"
	CategoryAudio MediaCategory = "audio"
	CategoryImage MediaCategory = "image"
)

var categoryFormats = map[MediaCategory][]string{
	CategoryVideo: {"mp4", "mov", "mkv", "avi", "webm"},
	CategoryAudio: {"mp3", "flac", "wav", "m4a", "ogg", "aac"},
	CategoryImage: {"jpg", "png", "webp", "gif", "bmp"},
}

// downloadFormats lists containers a download job may be delivered in.
var downloadFormats = []string{"mp4", "webm", "mp3", "m4a", "wav", "flac"}

// FormatsFor 返回某类别支持的输出格式
func FormatsFor(c MediaCategory) []string {
	out := make([]string, len(categoryFormats[c]))
	copy(out, categoryFormats[c])
	return out
}

// CategoryOf 根据扩展名推断类别，未知返回空
func CategoryOf(ext string) MediaCategory {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	for _, c := range []MediaCategory{CategoryVideo, CategoryAudio, CategoryImage} {
		for _, f := range categoryFormats[c] {
			if f == ext {
				return c
			}
		}
	}
	return ""
}

// IsSupportedOutput 校验作业类型与输出格式是否匹配
func IsSupportedOutput(kind JobKind, format string) bool {
	format = strings.ToLower(format)
	if kind == JobKindDownload {
		for _, f := range downloadFormats {
			if f == format {
				return true
			}
		}
		return false
	}
	return CategoryOf(format) != ""
}

// IsAudioFormat reports whether the container carries audio only.
func IsAudioFormat(format string) bool {
	return CategoryOf(format) == CategoryAudio
}

// CanConvert reports whether a file of one category can be turned into another.
// Video may also yield its audio track or a still frame.
func CanConvert(from, to MediaCategory) bool {
	if from == "" || to == "" {
		return false
	}
	return from == to || from == CategoryVideo
}
