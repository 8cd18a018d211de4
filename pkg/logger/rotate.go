package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateConfig 日志轮转配置
type RotateConfig struct {
	Filename string // 日志文件路径

	// 按大小轮转
	MaxSize    int  // 单文件上限(MB)
	MaxBackups int  // 保留旧文件数
	Compress   bool // 是否gzip压缩

	// 按时间轮转
	RotationTime time.Duration

	MaxAge    int  // 保留天数
	LocalTime bool // 文件名使用本地时间
}

// NewRotateBySize 按文件大小轮转
func NewRotateBySize(cfg *RotateConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}
}

// NewProductionRotateBySize 生产环境默认的大小轮转：100MB，保留30天
func NewProductionRotateBySize(filename string) io.Writer {
	return NewRotateBySize(&RotateConfig{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
		LocalTime:  true,
	})
}

// NewRotateByTime 按时间轮转，创建失败时退回标准错误
func NewRotateByTime(cfg *RotateConfig) io.Writer {
	w, err := newRotateByTime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[LOGGER] rotate by time failed: %v\n", err)
		return os.Stderr
	}
	return w
}

func newRotateByTime(cfg *RotateConfig) (io.Writer, error) {
	rotation := cfg.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	clock := rotatelogs.UTC
	if cfg.LocalTime {
		clock = rotatelogs.Local
	}

	abs, err := filepath.Abs(cfg.Filename)
	if err != nil {
		return nil, err
	}
	return rotatelogs.New(
		abs+".%Y%m%d%H",
		rotatelogs.WithLinkName(abs),
		rotatelogs.WithRotationTime(rotation),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithClock(clock),
	)
}
