// pkg/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel 日志级别类型
type LogLevel int

// 日志级别常量
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
	FatalLevel
)

// 日志级别名称映射
var levelNames = map[LogLevel]string{
	DebugLevel:    "DEBUG",
	InfoLevel:     "INFO",
	WarningLevel:  "WARNING",
	ErrorLevel:    "ERROR",
	CriticalLevel: "CRITICAL",
	FatalLevel:    "FATAL",
}

// String 返回级别名称
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel 解析配置中的级别名称，未知名称返回InfoLevel
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarningLevel
	case "ERROR":
		return ErrorLevel
	case "CRITICAL":
		return CriticalLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别
	Level LogLevel

	// 日志输出位置: "console", "file", "both"
	Output string

	// 日志文件路径 (当Output为"file"或"both"时)
	FilePath string

	// 是否启用调用位置信息
	EnableCaller bool

	// 是否打印时间戳
	EnableTimestamp bool

	// 是否启用颜色输出 (console)
	EnableColor bool
}

// Logger 日志器，底层使用zerolog输出
type Logger struct {
	name   string
	level  LogLevel
	zl     zerolog.Logger
	file   *os.File
	mu     sync.Mutex
	config LogConfig
}

// 默认logger配置
var defaultConfig = LogConfig{
	Level:           InfoLevel,
	Output:          "console",
	EnableCaller:    true,
	EnableTimestamp: true,
	EnableColor:     true,
}

// New 创建一个输出JSON行的日志器实例
func New(name string, level LogLevel, out io.Writer) (*Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	config := defaultConfig
	config.Level = level
	config.EnableColor = false

	return &Logger{
		name:   name,
		level:  level,
		zl:     buildZerolog(name, out, config),
		config: config,
	}, nil
}

// NewConsoleLogger 创建控制台日志器
func NewConsoleLogger(name string, level LogLevel, enableColor bool) *Logger {
	config := defaultConfig
	config.Level = level
	config.EnableColor = enableColor

	return &Logger{
		name:   name,
		level:  level,
		zl:     buildZerolog(name, consoleWriter(os.Stderr, enableColor), config),
		config: config,
	}
}

// NewFileLogger 创建一个文件日志器
func NewFileLogger(name string, level LogLevel, filePath string) (*Logger, error) {
	file, err := openLogFile(filePath)
	if err != nil {
		return nil, err
	}

	config := defaultConfig
	config.Level = level
	config.Output = "file"
	config.FilePath = filePath
	config.EnableColor = false

	return &Logger{
		name:   name,
		level:  level,
		zl:     buildZerolog(name, file, config),
		file:   file,
		config: config,
	}, nil
}

func openLogFile(filePath string) (*os.File, error) {
	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("无法创建日志目录: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("无法打开日志文件: %w", err)
	}
	return file, nil
}

func consoleWriter(out io.Writer, color bool) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    !color,
	}
}

func buildZerolog(name string, out io.Writer, config LogConfig) zerolog.Logger {
	ctx := zerolog.New(out).Level(zerolog.TraceLevel).With().Str("module", name)
	if config.EnableTimestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// SetLogLevel 设置日志级别
func (l *Logger) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.config.Level = level
}

// Level 返回当前日志级别
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Zerolog 返回带当前级别过滤的zerolog实例，用于结构化字段输出
func (l *Logger) Zerolog() zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	var level zerolog.Level
	switch l.level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarningLevel:
		level = zerolog.WarnLevel
	case ErrorLevel, CriticalLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.FatalLevel
	}
	return l.zl.Level(level)
}

// Close 关闭日志器
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// 格式化并记录日志，skip为调用栈跳过层数
func (l *Logger) log(skip int, level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	if level < l.level {
		l.mu.Unlock()
		return
	}
	zl := l.zl
	enableCaller := l.config.EnableCaller
	l.mu.Unlock()

	var message string
	if len(args) > 0 && strings.Contains(format, "%") {
		message = fmt.Sprintf(format, args...)
	} else if len(args) > 0 {
		message = fmt.Sprint(append([]interface{}{format, " "}, args...)...)
	} else {
		message = format
	}

	var event *zerolog.Event
	switch level {
	case DebugLevel:
		event = zl.Debug()
	case InfoLevel:
		event = zl.Info()
	case WarningLevel:
		event = zl.Warn()
	case ErrorLevel:
		event = zl.Error()
	case CriticalLevel:
		event = zl.Error().Bool("critical", true)
	default:
		event = zl.WithLevel(zerolog.FatalLevel)
	}

	if enableCaller {
		if _, file, line, ok := runtime.Caller(skip); ok {
			event = event.Str("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line))
		}
	}

	event.Msg(message)

	// fatal级别终止程序
	if level == FatalLevel {
		os.Exit(1)
	}
}

// Debug 记录调试级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(2, DebugLevel, format, args...)
}

// Info 记录信息级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(2, InfoLevel, format, args...)
}

// Warning 记录警告级别日志
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(2, WarningLevel, format, args...)
}

// Warn 警告级别别名
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(2, WarningLevel, format, args...)
}

// Error 记录错误级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(2, ErrorLevel, format, args...)
}

// Critical 记录严重错误级别日志
func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(2, CriticalLevel, format, args...)
}

// Fatal 记录致命错误并终止程序
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(2, FatalLevel, format, args...)
}

// 全局默认logger实例
var (
	defaultLogger *Logger
	loggerMu      sync.Mutex
	initialized   bool
)

// Init 初始化日志系统
func Init(name string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if initialized {
		return
	}

	defaultLogger = NewConsoleLogger(name, InfoLevel, true)
	initialized = true
}

// InitWithConfig 使用配置初始化日志系统，已初始化时替换默认日志器
func InitWithConfig(name string, config LogConfig) error {
	var (
		out  io.Writer
		file *os.File
		err  error
	)

	switch config.Output {
	case "file", "both":
		if config.FilePath == "" {
			return fmt.Errorf("日志文件路径未指定")
		}
		file, err = openLogFile(config.FilePath)
		if err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		out = file
		if config.Output == "both" {
			out = zerolog.MultiLevelWriter(consoleWriter(os.Stderr, config.EnableColor), file)
		}
	default: // "console" 或其他默认
		out = consoleWriter(os.Stderr, config.EnableColor)
	}

	l := &Logger{
		name:   name,
		level:  config.Level,
		zl:     buildZerolog(name, out, config),
		file:   file,
		config: config,
	}

	loggerMu.Lock()
	previous := defaultLogger
	defaultLogger = l
	initialized = true
	loggerMu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

// SetDefault 替换默认日志器
func SetDefault(l *Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
	initialized = l != nil
}

// GetLogger 获取默认日志器
func GetLogger() *Logger {
	loggerMu.Lock()
	if !initialized {
		loggerMu.Unlock()
		Init("default")
		loggerMu.Lock()
	}
	l := defaultLogger
	loggerMu.Unlock()
	return l
}

// SetLevel 设置全局日志级别
func SetLevel(level LogLevel) {
	GetLogger().SetLogLevel(level)
}

// 以下是全局函数，使用默认日志器

// Debug 全局调试日志
func Debug(format string, args ...interface{}) {
	GetLogger().log(3, DebugLevel, format, args...)
}

// Info 全局信息日志
func Info(format string, args ...interface{}) {
	GetLogger().log(3, InfoLevel, format, args...)
}

// Warning 全局警告日志
func Warning(format string, args ...interface{}) {
	GetLogger().log(3, WarningLevel, format, args...)
}

// Warn 全局警告日志别名
func Warn(format string, args ...interface{}) {
	GetLogger().log(3, WarningLevel, format, args...)
}

// Error 全局错误日志
func Error(format string, args ...interface{}) {
	GetLogger().log(3, ErrorLevel, format, args...)
}

// Critical 全局严重错误日志
func Critical(format string, args ...interface{}) {
	GetLogger().log(3, CriticalLevel, format, args...)
}

// Fatal 全局致命错误日志
func Fatal(format string, args ...interface{}) {
	GetLogger().log(3, FatalLevel, format, args...)
}

