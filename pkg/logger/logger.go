// Package logger writes area-filtered diagnostics to a size-rotated file.
// Everything is configured from the [Debug] section and every call is a
// no-op until Initialize has run.
package logger

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
)

// Level is the severity of an entry.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (lv Level) String() string {
	switch lv {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	}
	return "ERROR"
}

func parseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return INFO
}

// LogArea is a subsystem switched on with log_<area> = true.
type LogArea string

const (
	AreaTokenizer LogArea = "tokenizer"
	AreaProgram   LogArea = "program"
	AreaVariables LogArea = "variables"
	AreaExecution LogArea = "execution"
	AreaStore     LogArea = "store"
	AreaConsole   LogArea = "console"
	AreaAuth      LogArea = "auth"
	AreaConfig    LogArea = "config"
	AreaTLS       LogArea = "tls"
)

var areas = []LogArea{
	AreaTokenizer, AreaProgram, AreaVariables, AreaExecution,
	AreaStore, AreaConsole, AreaAuth, AreaConfig, AreaTLS,
}

// filter decides which entries reach the file.
type filter struct {
	enabled bool
	level   Level
	areas   map[LogArea]bool
}

func (f *filter) allows(lv Level, area LogArea) bool {
	return f != nil && f.enabled && lv >= f.level && f.areas[area]
}

var (
	active   atomic.Pointer[filter]
	sink     *rotatingFile
	initOnce sync.Once
)

// Initialize opens the log file named by [Debug] log_file.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		f := &filter{
			enabled: configuration.GetBool("Debug", "enable_debug_logging", false),
			level:   parseLevel(configuration.GetString("Debug", "log_level", "INFO")),
			areas:   make(map[LogArea]bool, len(areas)),
		}
		for _, a := range areas {
			f.areas[a] = configuration.GetBool("Debug", "log_"+string(a), false)
		}
		path := configuration.GetString("Debug", "log_file", "retrobasic.log")
		maxMB := int64(configuration.GetInt("Debug", "max_log_size_mb", 10))
		keep := configuration.GetInt("Debug", "log_rotation_count", 3)
		err = start(f, path, maxMB<<20, keep)
	})
	return err
}

func start(f *filter, path string, maxBytes int64, keep int) error {
	if !f.enabled {
		active.Store(f)
		return nil
	}
	rf, err := openRotating(path, maxBytes, keep)
	if err != nil {
		return err
	}
	sink = rf
	active.Store(f)
	return nil
}

// Close stops logging and closes the file.
func Close() {
	active.Store(nil)
	if sink != nil {
		sink.Close()
		sink = nil
	}
}

func write(lv Level, area LogArea, format string, args ...interface{}) {
	if !active.Load().allows(lv, area) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	_, file, line, _ := runtime.Caller(2)
	tag := strings.ToUpper(string(area))
	if sink != nil {
		fmt.Fprintf(sink, "%s %-5s %s:%d [%s] %s\n",
			time.Now().Format("2006-01-02 15:04:05.000"), lv, filepath.Base(file), line, tag, msg)
	}
	if lv >= WARN {
		log.Printf("[%s] [%s] %s", lv, tag, msg)
	}
}

func Debug(area LogArea, format string, args ...interface{}) { write(DEBUG, area, format, args...) }
func Info(area LogArea, format string, args ...interface{})  { write(INFO, area, format, args...) }
func Warn(area LogArea, format string, args ...interface{})  { write(WARN, area, format, args...) }
func Error(area LogArea, format string, args ...interface{}) { write(ERROR, area, format, args...) }

func StoreDebug(format string, args ...interface{}) { write(DEBUG, AreaStore, format, args...) }
func StoreInfo(format string, args ...interface{})  { write(INFO, AreaStore, format, args...) }
func StoreError(format string, args ...interface{}) { write(ERROR, AreaStore, format, args...) }

func ConsoleDebug(format string, args ...interface{}) { write(DEBUG, AreaConsole, format, args...) }
func ConsoleInfo(format string, args ...interface{})  { write(INFO, AreaConsole, format, args...) }
func ConsoleWarn(format string, args ...interface{})  { write(WARN, AreaConsole, format, args...) }
func ConsoleError(format string, args ...interface{}) { write(ERROR, AreaConsole, format, args...) }

func AuthDebug(format string, args ...interface{}) { write(DEBUG, AreaAuth, format, args...) }
func AuthInfo(format string, args ...interface{})  { write(INFO, AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { write(WARN, AreaAuth, format, args...) }

func ConfigInfo(format string, args ...interface{}) { write(INFO, AreaConfig, format, args...) }
func ConfigWarn(format string, args ...interface{}) { write(WARN, AreaConfig, format, args...) }

func TLSInfo(format string, args ...interface{}) { write(INFO, AreaTLS, format, args...) }
