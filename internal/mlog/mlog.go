// Package mlog is a small leveled, multi-sink logger in the spirit of the
// reference codebase's own logging package: callers register zero or
// more named sinks, each gated at its own minimum level, and the
// package-level Debug/Info/Warn/Error functions fan out to whichever
// sinks are listening. With no sink registered, logging is free and
// silent -- the right default for a library.
package mlog

import (
	"fmt"
	golog "log"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

type Writer interface {
	Write(p []byte) (n int, err error)
}

type sink struct {
	level  Level
	logger *golog.Logger
}

var (
	mu    sync.RWMutex
	sinks = make(map[string]*sink)
)

// AddLogger registers a named sink writing to w, gated at level. Calling
// it again with the same name replaces the previous sink.
func AddLogger(name string, w Writer, level Level) {
	mu.Lock()
	defer mu.Unlock()

	sinks[name] = &sink{level: level, logger: golog.New(w, "", 0)}
}

// DelLogger removes a named sink added with AddLogger.
func DelLogger(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(sinks, name)
}

// WillLog reports whether any registered sink would emit at level,
// useful for skipping expensive message formatting.
func WillLog(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()

	for _, s := range sinks {
		if level >= s.level {
			return true
		}
	}
	return false
}

func emit(level Level, format string, args []interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if len(sinks) == 0 {
		return
	}

	msg := fmt.Sprintf(format, args...)
	stamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	for _, s := range sinks {
		if level >= s.level {
			s.logger.Printf("%s %s %s", stamp, level, msg)
		}
	}
}

func Debug(format string, args ...interface{}) { emit(DEBUG, format, args) }
func Info(format string, args ...interface{})  { emit(INFO, format, args) }
func Warn(format string, args ...interface{})  { emit(WARN, format, args) }
func Error(format string, args ...interface{}) { emit(ERROR, format, args) }
