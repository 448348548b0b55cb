// Package logging provides the leveled, package-level logger used across scherzo.
// Messages go to the standard log output, or to a rotating file once
// Config.SetLogger has been called.
package logging

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/natefinch/lumberjack"
)

// ModeFlag is the minimum severity that gets written.
type ModeFlag uint32

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

func (m ModeFlag) String() string {
	switch m {
	case DebugMode:
		return "debug"
	case InfoMode:
		return "info"
	case WarningMode:
		return "warning"
	case ErrorMode:
		return "error"
	case SilentMode:
		return "silent"
	}
	return fmt.Sprintf("mode(%d)", uint32(m))
}

var (
	mode atomic.Uint32

	mu   sync.Mutex
	file *lumberjack.Logger
)

func init() {
	mode.Store(uint32(InfoMode))
}

// Config describes where log messages are written.
type Config struct {
	// Logfile is the rotating log file; empty means standard error
	Logfile string `yaml:"logfile" toml:"logfile"`

	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int `yaml:"maxSize" toml:"max_log_size"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge" toml:"max_log_age"`
}

// SetLogger sends log output to a rotating log file.
func (c *Config) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	mu.Lock()
	file = l
	mu.Unlock()
	log.SetOutput(l)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Shutdown closes the rotating log file, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// SetMode sets the severity required for a message to be printed.
// SetMode(WarningMode) logs Warningf and Errorf calls only; SilentMode turns logging off.
func SetMode(m ModeFlag) {
	mode.Store(uint32(m))
}

// Mode returns the current severity threshold.
func Mode() ModeFlag {
	return ModeFlag(mode.Load())
}

func enabled(m ModeFlag) bool {
	return Mode() <= m
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		log.Printf(" DEBUG "+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		log.Printf(" INFO "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		log.Printf(" WARNING "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		log.Printf(" ERROR "+format, args...)
	}
}

// TimeLog appends the elapsed time since its creation to every message.
//
//	tlog := logging.NewTimeLog()
//	...
//	tlog.Infof("extracted label %d", label) // "extracted label 3: 1.2s"
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	Debugf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	Infof(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	Warningf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	Errorf(format+": %s", append(args, time.Since(t.start))...)
}
