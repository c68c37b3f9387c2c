package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Format int32

const (
	FormatText Format = iota
	FormatJSON
)

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Int32

	mu     sync.Mutex
	logger = stdlog.New(os.Stdout, "", 0)
	closer io.Closer
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

// IsDebug reports whether debug messages are emitted. Use it to skip
// building expensive log arguments.
func IsDebug() bool {
	return Level(currentLevel.Load()) <= LevelDebug
}

// SetFormat selects "text" (default) or "json" output.
func SetFormat(format string) {
	switch strings.ToLower(format) {
	case "json":
		currentFormat.Store(int32(FormatJSON))
	case "text":
		currentFormat.Store(int32(FormatText))
	}
}

// SetOutput directs log lines to "stdout", "stderr" or a file path, which is
// opened in append mode.
func SetOutput(output string) error {
	var (
		w io.Writer
		c io.Closer
	)

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		w, c = f, f
	}

	setWriter(w, c)
	return nil
}

// SetWriter directs log lines to w. Mainly useful in tests.
func SetWriter(w io.Writer) {
	setWriter(w, nil)
}

func setWriter(w io.Writer, c io.Closer) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}
	logger = stdlog.New(w, "", 0)
	closer = c
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func log(level Level, format string, v ...any) {
	if level < Level(currentLevel.Load()) {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	var line string
	if Format(currentFormat.Load()) == FormatJSON {
		data, err := json.Marshal(jsonLine{
			Time:    now.Format(time.RFC3339Nano),
			Level:   level.String(),
			Message: message,
		})
		if err != nil {
			return
		}
		line = string(data)
	} else {
		line = fmt.Sprintf("[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level.String(), message)
	}

	mu.Lock()
	l := logger
	mu.Unlock()
	l.Println(line)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
