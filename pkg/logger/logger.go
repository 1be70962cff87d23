package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"medkit-service/pkg/config"
)

// Logger 日志服务，封装 logrus
type Logger struct {
	entry *logrus.Logger
	file  *os.File
}

var (
	mu     sync.RWMutex
	global = &Logger{entry: logrus.StandardLogger()}
)

// NewLogger 根据配置创建日志服务
func NewLogger(cfg *config.Config) *Logger {
	l := logrus.New()
	var logCfg config.LogConfig
	if cfg != nil {
		logCfg = cfg.Log
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(logCfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(logCfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	out := &Logger{entry: l}
	var w io.Writer = os.Stdout
	if strings.EqualFold(logCfg.Output, "file") && logCfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(logCfg.Filename), 0o755); err == nil {
			if f, err := os.OpenFile(logCfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				out.file = f
				w = io.MultiWriter(os.Stdout, f)
			}
		}
	}
	l.SetOutput(w)
	return out
}

// SetGlobalLogger 设置全局日志器
func SetGlobalLogger(l *Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	global = l
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.entry
}

// Close 关闭日志文件
func (l *Logger) Close() {
	if l != nil && l.file != nil {
		_ = l.file.Close()
	}
}

// Raw exposes the underlying logrus logger.
func (l *Logger) Raw() *logrus.Logger { return l.entry }

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { current().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { current().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

func Debug(msg string, fields ...map[string]interface{}) { withFields(fields).Debug(msg) }
func Info(msg string, fields ...map[string]interface{})  { withFields(fields).Info(msg) }
func Warn(msg string, fields ...map[string]interface{})  { withFields(fields).Warn(msg) }
func Error(msg string, fields ...map[string]interface{}) { withFields(fields).Error(msg) }

// Fatal 输出日志后退出进程
func Fatal(msg string, fields ...map[string]interface{}) {
	withFields(fields).Fatal(msg)
}

// WithJob returns an entry tagged with the job id.
func WithJob(jobID string) *logrus.Entry {
	return current().WithField("job_id", jobID)
}

func withFields(fields []map[string]interface{}) *logrus.Entry {
	merged := logrus.Fields{}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return current().WithFields(merged)
}
