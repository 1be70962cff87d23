package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"medkit-service/ddd/domain/port"
	"medkit-service/ddd/domain/vo"
	"medkit-service/pkg/logger"
)

const stderrTailLines = 50

var reTime = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.?\d*)`)

// FFmpegExecutor implements conversion with a local ffmpeg and probing with ffprobe.
type FFmpegExecutor struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpegExecutor(ffmpegBinary, ffprobeBinary string) *FFmpegExecutor {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpegExecutor{ffmpeg: ffmpegBinary, ffprobe: ffprobeBinary}
}

type probeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Size     string            `json:"size"`
		BitRate  string            `json:"bit_rate"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// Probe 调用 ffprobe 读取媒体信息. The file is reported as a single variant so the
// format resolver can plan against it.
func (e *FFmpegExecutor) Probe(ctx context.Context, path string) (*vo.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(raw []byte) (*vo.MediaInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	info := &vo.MediaInfo{FrameRate: vo.UnknownFrameRate}
	info.Duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	if p.Format.Tags != nil {
		info.Title = p.Format.Tags["title"]
	}

	variant := vo.Variant{ID: "0", VCodec: "none", ACodec: "none"}
	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width, info.Height = s.Width, s.Height
			info.FrameRate = vo.ParseFrameRate(s.RFrameRate)
			variant.VCodec = s.CodecName
			variant.Width, variant.Height = s.Width, s.Height
			variant.FPS = info.FrameRate.FPS()
			variant.VBR = kbps(s.BitRate)
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = s.CodecName
			variant.ACodec = s.CodecName
			variant.ABR = kbps(s.BitRate)
		}
	}
	variant.TBR = kbps(p.Format.BitRate)
	if variant.HasVideo() || variant.HasAudio() {
		info.Variants = []vo.Variant{variant}
	}
	return info, nil
}

func kbps(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / 1000
}

// Execute converts req.Source into req.WorkDir and reports progress from ffmpeg's
// -progress stream.
func (e *FFmpegExecutor) Execute(ctx context.Context, req port.ExecRequest, attempt vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
	durationSec := 0.0
	if info, err := e.Probe(ctx, req.Source); err == nil {
		durationSec = info.Duration
	}

	ext := strings.ToLower(strings.TrimPrefix(req.OutputFormat, "."))
	outputPath := filepath.Join(req.WorkDir, "output."+ext)
	args := buildConvertArgs(req, attempt, outputPath)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := exec.CommandContext(runCtx, e.ffmpeg, args...)
	logger.Infof("ffmpeg command job_id=%s attempt=%s command=%s", req.JobID, attempt.Name(), strings.Join(cmd.Args, " "))

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("创建FFmpeg stderr管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动FFmpeg命令失败: %w", err)
	}

	if err := sink.Report(ctx, 5, "Converting..."); err != nil {
		cancel()
		_ = cmd.Wait()
		return nil, err
	}
	tail, sinkErr := scanProgress(stderr, durationSec, func(pct int) error {
		if err := sink.Report(ctx, pct, "Converting..."); err != nil {
			cancel()
			return err
		}
		return nil
	})
	waitErr := cmd.Wait()
	if sinkErr != nil {
		return nil, sinkErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(tail) > 0 {
			logger.Errorf("ffmpeg failed job_id=%s tail_stderr=%s", req.JobID, strings.Join(tail, "\n"))
			return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, tail[len(tail)-1])
		}
		return nil, fmt.Errorf("ffmpeg: %w", waitErr)
	}

	st, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	if err := sink.Report(ctx, 95, "Processing..."); err != nil {
		return nil, err
	}
	return &port.ExecResult{Path: outputPath, Ext: ext, Size: st.Size(), Duration: durationSec}, nil
}

// buildConvertArgs picks codecs from the output category and the encode preset.
func buildConvertArgs(req port.ExecRequest, attempt vo.Attempt, outputPath string) []string {
	ext := strings.ToLower(strings.TrimPrefix(req.OutputFormat, "."))
	settings := req.Preset.Settings()

	args := append([]string{}, attempt.Persona().ExtraArgs...)
	args = append(args,
		"-probesize", "5M",
		"-analyzeduration", "5M",
		"-i", req.Source,
		"-progress", "pipe:2",
		"-nostats",
	)

	switch vo.CategoryOf(ext) {
	case vo.CategoryImage:
		args = append(args, "-frames:v", "1")
	case vo.CategoryAudio:
		args = append(args, "-vn")
		args = append(args, audioCodecArgs(ext, settings.AudioBitrate)...)
	default:
		if ext == "webm" {
			args = append(args, "-c:v", "libvpx-vp9", "-crf", strconv.Itoa(settings.CRF+10), "-b:v", "0", "-c:a", "libopus", "-b:a", settings.AudioBitrate)
		} else {
			args = append(args,
				"-c:v", "libx264",
				"-crf", strconv.Itoa(settings.CRF),
				"-preset", settings.Speed,
				"-c:a", "aac",
				"-b:a", settings.AudioBitrate,
			)
			if ext == "mp4" || ext == "mov" {
				args = append(args, "-movflags", "+faststart")
			}
		}
		if h := req.Plan.TargetHeight; h > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", h))
		}
	}
	return append(args, "-y", outputPath)
}

func audioCodecArgs(ext, bitrate string) []string {
	switch ext {
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}
	case "flac":
		return []string{"-c:a", "flac"}
	case "wav":
		return []string{"-c:a", "pcm_s16le"}
	case "ogg":
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}
	default:
		return []string{"-c:a", "aac", "-b:a", bitrate}
	}
}

// scanProgress reads ffmpeg stderr, reports 0..99 and keeps the last non-progress lines.
func scanProgress(stderr io.Reader, durationSec float64, report func(int) error) ([]string, error) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	tail := make([]string, 0, stderrTailLines)
	var reportErr error

	emit := func(sec float64) {
		if reportErr != nil || durationSec <= 0 {
			return
		}
		pct := int((sec / durationSec) * 100)
		if pct > 99 {
			pct = 99
		}
		if pct < 0 {
			pct = 0
		}
		reportErr = report(pct)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "out_time_ms=") {
			if ms, err := strconv.ParseFloat(strings.TrimPrefix(line, "out_time_ms="), 64); err == nil {
				emit(ms / 1e6)
			}
			continue
		}
		if m := reTime.FindStringSubmatch(line); len(m) == 4 {
			hh, _ := strconv.ParseFloat(m[1], 64)
			mm, _ := strconv.ParseFloat(m[2], 64)
			ss, _ := strconv.ParseFloat(m[3], 64)
			emit(hh*3600 + mm*60 + ss)
			continue
		}
		if strings.Contains(line, "=") && !strings.Contains(line, " ") {
			// other -progress keys
			continue
		}
		if len(tail) >= stderrTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	return tail, reportErr
}
