package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"speedtest-exporter/internal/paths"
	pkgerrors "speedtest-exporter/pkg/errors"
)

// TimeLayout is the timestamp format of every log line.
const TimeLayout = "2006-01-02 15:04:05,000"

// Separator sits between the timestamp, level, message and fields of a line.
const Separator = " - "

// Options configures the run log.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	Level      string
	// Console, when set, receives a copy of every line (stderr under a
	// service manager).
	Console io.Writer
}

// EncoderConfig renders lines as "<timestamp> - <LEVEL> - <message>" followed
// by the structured fields as a JSON object.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      LevelEncoder,
		EncodeDuration:   zapcore.SecondsDurationEncoder,
		ConsoleSeparator: Separator,
	}
}

// LevelEncoder writes level names the way the run log has always spelled
// them: WARNING rather than WARN, and CRITICAL for anything above ERROR.
func LevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		zapcore.CapitalLevelEncoder(l, enc)
	}
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(name)
}

// New builds the process logger writing to a size-rotated file. The file is
// opened once up front so an unwritable path fails at startup rather than on
// the first cycle. The returned close func flushes and closes the file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := checkWritable(opts.File); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		LocalTime:  true,
	}

	enc := zapcore.NewConsoleEncoder(EncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.AddSync(rotator), level),
	}
	if opts.Console != nil {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.Lock(zapcore.AddSync(opts.Console)), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	closeFn := func() error {
		_ = logger.Sync()
		return rotator.Close()
	}
	return logger, closeFn, nil
}

// NewConsole builds a logger that only writes to w, for commands that do not
// own the run log.
func NewConsole(w io.Writer, levelName string) (*zap.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(EncoderConfig()), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core), nil
}

func checkWritable(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no path configured", pkgerrors.ErrLogFileUnavailable)
	}
	if err := paths.EnsureParentDir(path); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrLogFileUnavailable, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrLogFileUnavailable, err)
	}
	paths.ChownToRealUser(path)
	return f.Close()
}

// gocronLogger forwards scheduler diagnostics into the run log.
type gocronLogger struct {
	sugar *zap.SugaredLogger
}

// GocronLogger adapts a zap logger to the gocron.Logger interface.
func GocronLogger(l *zap.Logger) gocron.Logger {
	return &gocronLogger{sugar: l.Sugar()}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
