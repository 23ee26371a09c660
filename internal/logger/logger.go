package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes colored lines to the terminal and JSON lines to a daily file.
type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	file     io.WriteCloser
	minLevel LogLevel
}

func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	logFileName := filepath.Join(dir, fmt.Sprintf("checkin-service-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := &Logger{
		terminal: os.Stdout,
		file:     logFile,
		minLevel: levelFromEnv(),
	}

	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	return l
}

// NewNopLogger discards everything. Used by tests and tools.
func NewNopLogger() *Logger {
	return &Logger{terminal: io.Discard, minLevel: FATAL + 1}
}

func levelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) log(level LogLevel, category, message string) {
	if l == nil || level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.terminal, formatTerminalOutput(entry))
	if l.file != nil {
		jsonBytes, _ := json.Marshal(entry)
		l.file.Write(append(jsonBytes, '\n'))
	}
}

func formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	var levelColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
	case "INFO":
		levelColor = color.New(color.FgGreen)
	case "WARN":
		levelColor = color.New(color.FgYellow)
	case "ERROR":
		levelColor = color.New(color.FgRed)
	case "FATAL":
		levelColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgWhite)
	}
	categoryColor := color.New(color.Bold)

	timeStr := color.New(color.FgBlue).Sprint(timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}
	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Specialized logging methods for different components
func (l *Logger) LogScan(eventID, ticketID, verdict string) {
	l.Info("SCAN", fmt.Sprintf("[%s] event=%s ticket=%s", verdict, eventID, ticketID))
}

func (l *Logger) LogReset(eventID string, cleared int) {
	l.Warn("RESET", fmt.Sprintf("event=%s attendance reset, %d tickets cleared", eventID, cleared))
}

func (l *Logger) LogAPI(method, path string, status int, duration time.Duration) {
	l.Info("API", fmt.Sprintf("%s %s - %d (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l == nil || l.file == nil {
		return
	}
	l.Info("LOGGER", "Closing log file")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Close()
	l.file = nil
}
