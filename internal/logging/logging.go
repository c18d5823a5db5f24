package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
)

// Log levels, in increasing verbosity.
const (
	None = iota
	Error
	Warning
	Info
	Debug
)

var levelPrefixes = map[int]string{
	Error:   "[ERROR] ",
	Warning: "[WARN] ",
	Info:    "[INFO] ",
	Debug:   "[DEBUG] ",
}

var (
	currentLevel atomic.Int32
	logger       = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)
)

func init() {
	currentLevel.Store(Info)
}

// SetLevel sets the global level, clamped to [None, Debug].
func SetLevel(level int) {
	if level < None {
		level = None
	} else if level > Debug {
		level = Debug
	}
	currentLevel.Store(int32(level))
	if level == Debug {
		logf(Debug, "Log level set to debug")
	}
}

// GetLevel returns the current global level.
func GetLevel() int {
	return int(currentLevel.Load())
}

// Enabled reports whether messages at level would be written. Use it to skip
// building expensive debug arguments.
func Enabled(level int) bool {
	return level != None && int32(level) <= currentLevel.Load()
}

// ParseLevel converts a level name (case-insensitive) to its constant.
// Unknown names return Info and an error.
func ParseLevel(levelStr string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "none":
		return None, nil
	case "error":
		return Error, nil
	case "warn", "warning":
		return Warning, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return Info, fmt.Errorf("invalid log level string: '%s'", levelStr)
	}
}

// SetupLogging parses levelStr and applies it, falling back to Info with a
// warning. Returns the level that was set.
func SetupLogging(levelStr string) int {
	level, err := ParseLevel(levelStr)
	if err != nil {
		logf(Warning, "Invalid log level '%s' provided, defaulting to 'info'. Error: %v", levelStr, err)
	}
	SetLevel(level)
	return level
}

// SetOutput redirects the global logger.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// callerPrefix describes the caller of Logf as "file.go:123:pkg.Func".
func callerPrefix(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0:???"
	}
	funcName := "???"
	if f := runtime.FuncForPC(pc); f != nil {
		funcName = filepath.Base(f.Name())
	}
	return fmt.Sprintf("%s:%d:%s", filepath.Base(file), line, funcName)
}

func logf(level int, format string, v ...interface{}) {
	if !Enabled(level) {
		return
	}
	prefix, ok := levelPrefixes[level]
	if !ok {
		prefix = "[UNKN] "
	}
	if level == Debug {
		// Skip callerPrefix, logf and Logf.
		prefix += callerPrefix(3) + " "
	}
	logger.Println(prefix + fmt.Sprintf(format, v...))
}

// Logf writes a formatted message when level is enabled.
func Logf(level int, format string, v ...interface{}) {
	logf(level, format, v...)
}
