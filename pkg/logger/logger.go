package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu             sync.RWMutex
	lumberjackWriters map[string]*lumberjack.Logger
	currentDate       atomic.Value
	closed            chan struct{}
	closeOnce         sync.Once
	DateFormat        = "2006-01-02"
	TimeFormat        = "2006-01-02 15:04:05"
)

// initLogger 初始化日志系统
func initLogger(config Config) error {
	currentDate.Store(time.Now().Format(DateFormat))
	closed = make(chan struct{})
	closeOnce = sync.Once{}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	SetLevel(config.Level)

	// LevelFiles 为空时只写 info 文件
	if config.LevelFiles.IsEmpty() {
		config.LevelFiles = LevelFiles{
			{Level: INFO, Path: "logs/info.log"},
		}
	}

	for _, filePath := range config.LevelFiles.GetPaths() {
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			return err
		}
	}

	setWriter(config)

	go watchDate(config)

	return nil
}

func setWriter(config Config) {
	// 已配置等级的位掩码
	var configuredLevels uint8
	for _, entry := range config.LevelFiles {
		configuredLevels |= 1 << parseLevel(entry.Level)
	}

	writers := make([]io.Writer, 0, len(config.LevelFiles)+1)
	ljWriters := make(map[string]*lumberjack.Logger, len(config.LevelFiles))

	for _, entry := range config.LevelFiles {
		lj := &lumberjack.Logger{
			Filename:   entry.Path,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		ljWriters[entry.Level] = lj

		writers = append(writers, &levelFilterWriter{
			level:            parseLevel(entry.Level),
			configuredLevels: configuredLevels,
			Writer: &zerolog.ConsoleWriter{
				Out:        lj,
				TimeFormat: TimeFormat,
				NoColor:    true,
			},
		})
	}

	if config.Console {
		writers = append(writers, &zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: TimeFormat,
		})
	}

	logMu.Lock()
	defer logMu.Unlock()

	if lumberjackWriters != nil {
		closeAllWriters()
	}
	lumberjackWriters = ljWriters
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Caller().Logger()
}

// levelFilterWriter 只写入指定等级，未单独配置文件的等级降级写入 info，fatal 降级写入 error
type levelFilterWriter struct {
	level            zerolog.Level
	configuredLevels uint8
	io.Writer
}

func (w *levelFilterWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level == w.level {
		return w.Writer.Write(p)
	}

	switch w.level {
	case zerolog.InfoLevel:
		if w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	case zerolog.ErrorLevel:
		if level == zerolog.FatalLevel && w.configuredLevels&(1<<level) == 0 {
			return w.Writer.Write(p)
		}
	}
	return len(p), nil
}

// parseLevel 解析等级名称
func parseLevel(levelName string) zerolog.Level {
	switch levelName {
	case "debug", "DEBUG":
		return zerolog.DebugLevel
	case "info", "INFO":
		return zerolog.InfoLevel
	case "warn", "WARN":
		return zerolog.WarnLevel
	case "error", "ERROR":
		return zerolog.ErrorLevel
	case "fatal", "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// closeAllWriters 调用方需持有 logMu
func closeAllWriters() {
	for levelName, lj := range lumberjackWriters {
		if err := lj.Close(); err != nil {
			log.Logger.Err(err).Str("level", levelName).Msg("failed to close lumberjack writer")
		}
	}
	lumberjackWriters = nil
}

// watchDate 跨天时轮转所有日志文件
func watchDate(config Config) {
	now := time.Now()
	timer := time.NewTimer(nextDay(now).Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-closed:
			return
		case t := <-timer.C:
			newDate := t.Format(DateFormat)
			if newDate != currentDate.Load().(string) {
				currentDate.Store(newDate)
				rotateAllFiles(config)
			}
			timer.Reset(nextDay(t).Sub(t))
		}
	}
}

func rotateAllFiles(config Config) {
	for i := 0; i < 3; i++ {
		var lastErr error
		logMu.RLock()
		for levelName, lj := range lumberjackWriters {
			if err := lj.Rotate(); err != nil {
				lastErr = err
				log.Logger.Err(err).Str("level", levelName).Msg("failed to rotate log file")
			}
		}
		logMu.RUnlock()

		if lastErr != nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		setWriter(config)
		log.Logger.Info().Msg("log files rotated by date")
		return
	}
}

func nextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// L 返回全局 logger
func L() zerolog.Logger {
	return log.Logger
}

// Component 返回带 component 字段的子 logger
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Info() *zerolog.Event {
	return log.Logger.Info()
}

func Debug() *zerolog.Event {
	return log.Logger.Debug()
}

func Error() *zerolog.Event {
	return log.Logger.Error()
}

func Warn() *zerolog.Event {
	return log.Logger.Warn()
}

func Fatal() *zerolog.Event {
	return log.Logger.Fatal()
}

// Err 直接记录错误
func Err(err error) *zerolog.Event {
	return log.Logger.Err(err)
}

// Close 关闭日志
func Close() {
	if closed != nil {
		closeOnce.Do(func() { close(closed) })
	}

	logMu.Lock()
	defer logMu.Unlock()
	if len(lumberjackWriters) > 0 {
		closeAllWriters()
	}
}
