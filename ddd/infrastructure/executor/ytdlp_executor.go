package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

var (
	progressRe    = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+~?\s*(\S+)(?:\s+at\s+(\S+))?`)
	destinationRe = regexp.MustCompile(`^\[download\] Destination: `)
	attemptDirRe  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

	formatUnavailableMarkers = []string{
		"Requested format is not available",
		"requested format not available",
	}
)

// YtDlpExecutor drives the yt-dlp binary. It serves as both the extractor and the
// download executor.
type YtDlpExecutor struct {
	binary string
}

// NewYtDlpExecutor 创建 yt-dlp 执行器
func NewYtDlpExecutor(binary string) *YtDlpExecutor {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &YtDlpExecutor{binary: binary}
}

// infoJSON is the subset of --dump-json output we read.
type infoJSON struct {
	Title     string       `json:"title"`
	Uploader  string       `json:"uploader"`
	Thumbnail string       `json:"thumbnail"`
	Duration  float64      `json:"duration"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	FPS       float64      `json:"fps"`
	VCodec    string       `json:"vcodec"`
	ACodec    string       `json:"acodec"`
	Formats   []vo.Variant `json:"formats"`
}

func (i *infoJSON) toMediaInfo() *vo.MediaInfo {
	info := &vo.MediaInfo{
		Title:      i.Title,
		Uploader:   i.Uploader,
		Thumbnail:  i.Thumbnail,
		Duration:   i.Duration,
		Width:      i.Width,
		Height:     i.Height,
		VideoCodec: i.VCodec,
		AudioCodec: i.ACodec,
		Variants:   i.Formats,
	}
	if i.FPS > 0 {
		info.FrameRate = vo.ParseFrameRate(strconv.FormatFloat(i.FPS, 'f', -1, 64))
	}
	return info
}

// Extract runs yt-dlp --dump-json to read metadata and the variant catalog.
func (e *YtDlpExecutor) Extract(ctx context.Context, source string, attempt vo.Attempt) (*vo.MediaInfo, error) {
	args := []string{"--dump-json", "--no-warnings", "--no-download", "--no-playlist"}
	args = append(args, personaArgs(attempt.Persona())...)
	args = append(args, source)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFailure(lastErrorLine(stderr.String()), err)
	}

	var info infoJSON
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse info: %w", err)
	}
	logger.Debugf("yt-dlp extracted title=%q formats=%d client=%s", info.Title, len(info.Formats), attempt.Name())
	return info.toMediaInfo(), nil
}

// Execute downloads the attempt's selector into a fresh directory under req.WorkDir.
func (e *YtDlpExecutor) Execute(ctx context.Context, req port.ExecRequest, attempt vo.Attempt, sink port.ProgressSink) (*port.ExecResult, error) {
	outDir, err := prepareAttemptDir(req.WorkDir, attempt)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := downloadArgs(req, attempt, outDir)
	cmd := exec.CommandContext(runCtx, e.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	logger.Infof("yt-dlp start job_id=%s attempt=%s selector=%s", req.JobID, attempt.Name(), attempt.Selector())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}

	tracker := newDownloadTracker(req.Plan.NeedsMerge() && attempt.Selector() != vo.GenericSelector)
	var lastError string
	var sinkErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ERROR:") {
			lastError = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
		pct, msg, ok := tracker.parse(line)
		if !ok || sinkErr != nil {
			continue
		}
		if err := sink.Report(ctx, pct, msg); err != nil {
			sinkErr = err
			cancel()
		}
	}
	// drain so Wait does not block on a full pipe
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if sinkErr != nil {
		return nil, sinkErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFailure(lastError, waitErr)
	}

	path, err := pickOutput(outDir)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := sink.Report(ctx, 95, "Processing..."); err != nil {
		return nil, err
	}
	return &port.ExecResult{
		Path: path,
		Ext:  strings.TrimPrefix(filepath.Ext(path), "."),
		Size: st.Size(),
	}, nil
}

func personaArgs(p vo.Persona) []string {
	var args []string
	if p.Client != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+p.Client)
	}
	if p.UserAgent != "" {
		args = append(args, "--user-agent", p.UserAgent)
	}
	for _, h := range p.Headers {
		args = append(args, "--add-header", h.Name+":"+h.Value)
	}
	if p.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", p.CookiesFromBrowser)
	}
	if p.Retries > 0 {
		n := strconv.Itoa(p.Retries)
		args = append(args, "--retries", n, "--fragment-retries", n)
	}
	return append(args, p.ExtraArgs...)
}

// prepareAttemptDir 每次尝试使用独立且为空的目录, leftovers of a failed try never count as output.
func prepareAttemptDir(workDir string, attempt vo.Attempt) (string, error) {
	name := attemptDirRe.ReplaceAllString(attempt.Name(), "_")
	if name == "" {
		name = "default"
	}
	dir := filepath.Join(workDir, "attempt-"+name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear attempt dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create attempt dir: %w", err)
	}
	return dir, nil
}

func downloadArgs(req port.ExecRequest, attempt vo.Attempt, outDir string) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-warnings",
		"--no-playlist",
		"--no-part",
		"-o", filepath.Join(outDir, "%(title).100s.%(ext)s"),
	}
	if sel := attempt.Selector(); sel != "" {
		args = append(args, "-f", sel)
	}
	format := strings.ToLower(req.OutputFormat)
	switch {
	case vo.IsAudioFormat(format):
		args = append(args, "-x", "--audio-format", format)
	case format != "":
		args = append(args, "--merge-output-format", format, "--remux-video", format)
	}
	args = append(args, personaArgs(attempt.Persona())...)
	return append(args, req.Source)
}

// downloadTracker maps yt-dlp output onto one 0..95 scale across the
// streams of a merged download.
type downloadTracker struct {
	streams int
	current int
}

func newDownloadTracker(merge bool) *downloadTracker {
	if merge {
		return &downloadTracker{streams: 2, current: -1}
	}
	return &downloadTracker{streams: 1, current: -1}
}

func (t *downloadTracker) parse(line string) (int, string, bool) {
	switch {
	case destinationRe.MatchString(line):
		if t.current < t.streams-1 {
			t.current++
		}
		return 0, "", false
	case strings.Contains(line, "[Merger]") || strings.Contains(line, "Merging formats"):
		return 92, "Merging...", true
	case strings.Contains(line, "[ExtractAudio]") || strings.Contains(line, "[VideoRemuxer]") || strings.Contains(line, "[VideoConvertor]"):
		return 95, "Processing...", true
	}

	m := progressRe.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, "", false
	}
	raw, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	idx := t.current
	if idx < 0 {
		idx = 0
	}
	overall := (float64(idx)*100 + raw) / float64(t.streams) * 0.9
	msg := "Downloading..."
	if len(m) > 3 {
		if speed := parseSpeed(m[3]); speed > 0 {
			msg = fmt.Sprintf("Downloading... %.1f MB/s", float64(speed)/1024/1024)
		}
	}
	return int(overall), msg, true
}

func parseSpeed(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "Unknown" || s == "" {
		return 0
	}

	multiplier := float64(1)
	s = strings.ToUpper(s)
	switch {
	case strings.HasSuffix(s, "GIB/S"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GIB/S")
	case strings.HasSuffix(s, "MIB/S"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MIB/S")
	case strings.HasSuffix(s, "KIB/S"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KIB/S")
	case strings.HasSuffix(s, "B/S"):
		s = strings.TrimSuffix(s, "B/S")
	default:
		return 0
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(val * multiplier)
}

func lastErrorLine(output string) string {
	var last string
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			last = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	return last
}

// classifyFailure turns the last reported error into a domain error.
func classifyFailure(lastError string, exitErr error) error {
	if lastError == "" {
		return fmt.Errorf("yt-dlp exit: %w", exitErr)
	}
	for _, marker := range formatUnavailableMarkers {
		if strings.Contains(lastError, marker) {
			return fmt.Errorf("%w: %s", port.ErrFormatUnavailable, lastError)
		}
	}
	return errors.New(lastError)
}

// pickOutput returns the largest finished file in dir.
func pickOutput(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var best string
	var bestSize int64 = -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch filepath.Ext(name) {
		case ".part", ".ytdl", ".json", ".tmp":
			continue
		}
		if strings.HasPrefix(name, "input") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, name), info.Size()
		}
	}
	if best == "" {
		return "", errors.New("yt-dlp produced no output file")
	}
	return best, nil
}
