// Package logging provides the structured logger used across the debug
// adapter: the DAP session handlers log through a Logger scoped to a
// session id rather than a generic request id, since the unit of work here
// is a DAP session, not an HTTP request; server-wide components such as the
// binary cache log through the unscoped Logger.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Level is the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
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
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() *color.Color {
	switch l {
	case DEBUG:
		return color.New(color.FgCyan)
	case WARN:
		return color.New(color.FgYellow)
	case ERROR, FATAL:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// Format selects the on-the-wire representation of a log entry.
type Format int

const (
	TextFormat Format = iota
	JSONFormat
)

// Entry is a single structured log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	SessionID string                 `json:"session_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// Config configures a Logger.
type Config struct {
	MinLevel      Level
	Format        Format
	IncludeCaller bool
	BufferSize    int
	Outputs       []io.Writer
	Colorize      bool
}

// Logger is the process-wide async logger.
type Logger struct {
	config  Config
	buffer  chan *Entry
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	syncCh  chan chan struct{}
}

// New creates a Logger, filling in defaults the way the config package does
// for the rest of the server (zero-value-friendly, never requires a caller
// to populate every field).
func New(cfg Config) *Logger {
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1000
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = []io.Writer{os.Stdout}
	}
	l := &Logger{
		config: cfg,
		buffer: make(chan *Entry, cfg.BufferSize),
		syncCh: make(chan chan struct{}, 1),
	}
	l.wg.Add(1)
	go l.processLogs()
	return l
}

func (l *Logger) processLogs() {
	defer l.wg.Done()
	for {
		select {
		case entry, ok := <-l.buffer:
			if !ok {
				select {
				case done := <-l.syncCh:
					close(done)
				default:
				}
				return
			}
			l.writeLog(entry)
		case done := <-l.syncCh:
			draining := true
			for draining {
				select {
				case entry := <-l.buffer:
					l.writeLog(entry)
				default:
					draining = false
				}
			}
			close(done)
		}
	}
}

func (l *Logger) writeLog(entry *Entry) {
	var output string
	if l.config.Format == JSONFormat {
		b, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed to marshal entry: %v\n", err)
			return
		}
		output = string(b) + "\n"
	} else {
		output = l.formatTextLog(entry)
	}
	for _, w := range l.config.Outputs {
		if _, err := w.Write([]byte(output)); err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed to write entry: %v\n", err)
		}
	}
}

func (l *Logger) formatTextLog(entry *Entry) string {
	ts := entry.Timestamp.Format("2006-01-02 15:04:05.000")
	levelStr := fmt.Sprintf("[%s]", entry.Level)
	if l.config.Colorize {
		lvl := DEBUG
		switch entry.Level {
		case "INFO":
			lvl = INFO
		case "WARN":
			lvl = WARN
		case "ERROR":
			lvl = ERROR
		case "FATAL":
			lvl = FATAL
		}
		levelStr = lvl.color().Sprint(levelStr)
	}

	parts := []string{fmt.Sprintf("[%s]", ts), levelStr}
	if entry.SessionID != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.SessionID))
	}
	if entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Caller))
	}
	parts = append(parts, entry.Message)

	if len(entry.Fields) > 0 {
		fieldsStr := ""
		for k, v := range entry.Fields {
			if fieldsStr != "" {
				fieldsStr += ", "
			}
			fieldsStr += fmt.Sprintf("%s=%v", k, v)
		}
		parts = append(parts, fmt.Sprintf("{%s}", fieldsStr))
	}

	result := ""
	for i, p := range parts {
		if i > 0 {
			result += " "
		}
		result += p
	}
	return result + "\n"
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}, sessionID string) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if level < l.config.MinLevel {
		return
	}

	entry := &Entry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
		SessionID: sessionID,
		Fields:    fields,
	}
	if l.config.IncludeCaller {
		_, file, line, ok := runtime.Caller(2)
		if ok {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	select {
	case l.buffer <- entry:
	default:
		l.writeLog(entry)
	}

	if level == FATAL {
		l.Close()
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string)                                   { l.log(DEBUG, msg, nil, "") }
func (l *Logger) Info(msg string)                                    { l.log(INFO, msg, nil, "") }
func (l *Logger) Warn(msg string)                                    { l.log(WARN, msg, nil, "") }
func (l *Logger) Error(msg string)                                   { l.log(ERROR, msg, nil, "") }
func (l *Logger) Fatal(msg string)                                   { l.log(FATAL, msg, nil, "") }
func (l *Logger) DebugFields(msg string, f map[string]interface{})   { l.log(DEBUG, msg, f, "") }
func (l *Logger) InfoFields(msg string, f map[string]interface{})    { l.log(INFO, msg, f, "") }
func (l *Logger) WarnFields(msg string, f map[string]interface{})    { l.log(WARN, msg, f, "") }
func (l *Logger) ErrorFields(msg string, f map[string]interface{})   { l.log(ERROR, msg, f, "") }

// Sync flushes all pending log entries.
func (l *Logger) Sync() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	done := make(chan struct{})
	l.syncCh <- done
	<-done
}

// Close gracefully shuts the logger down.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.buffer)
	l.wg.Wait()
	return nil
}

// WithSession returns a ContextLogger scoped to a DAP session id.
func (l *Logger) WithSession(sessionID string) *ContextLogger {
	return &ContextLogger{logger: l, sessionID: sessionID, fields: make(map[string]interface{})}
}

// NewSessionID mints a session id for a newly accepted DAP connection.
func NewSessionID() string {
	return uuid.New().String()
}

// ContextLogger carries a session id and accumulated fields.
type ContextLogger struct {
	logger    *Logger
	sessionID string
	fields    map[string]interface{}
	mu        sync.Mutex
}

func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	merged := make(map[string]interface{}, len(cl.fields)+1)
	for k, v := range cl.fields {
		merged[k] = v
	}
	merged[key] = value
	return &ContextLogger{logger: cl.logger, sessionID: cl.sessionID, fields: merged}
}

func (cl *ContextLogger) mergeFields(extra map[string]interface{}) map[string]interface{} {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if extra == nil {
		return cl.fields
	}
	merged := make(map[string]interface{}, len(cl.fields)+len(extra))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (cl *ContextLogger) Debug(msg string) { cl.logger.log(DEBUG, msg, cl.mergeFields(nil), cl.sessionID) }
func (cl *ContextLogger) Info(msg string)  { cl.logger.log(INFO, msg, cl.mergeFields(nil), cl.sessionID) }
func (cl *ContextLogger) Warn(msg string)  { cl.logger.log(WARN, msg, cl.mergeFields(nil), cl.sessionID) }
func (cl *ContextLogger) Error(msg string) { cl.logger.log(ERROR, msg, cl.mergeFields(nil), cl.sessionID) }
