package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category
type Category string

const (
	CategoryAPI       Category = "api"
	CategoryDB        Category = "db"
	CategoryGroup     Category = "group"
	CategoryBatch     Category = "batch"
	CategoryProbe     Category = "probe"
	CategoryReconcile Category = "reconcile"
	CategoryScheduler Category = "scheduler"
	CategoryWebSocket Category = "websocket"
	CategoryStartup   Category = "startup"
)

// Level represents log level
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Category  Category               `json:"category"`
	Action    string                 `json:"action"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger writes one daily JSON log file per category, plus the console.
type Logger struct {
	mu       sync.Mutex
	logDir   string
	writers  map[Category]*os.File
	files    map[Category]string
	console  bool
	minLevel Level
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(logDir string, console bool) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(logDir, console)
	})
	return err
}

// NewLogger creates a new logger
func NewLogger(logDir string, console bool) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Logger{
		logDir:   logDir,
		writers:  make(map[Category]*os.File),
		files:    make(map[Category]string),
		console:  console,
		minLevel: LevelDebug,
	}, nil
}

// getWriter returns or creates a file writer for the category
func (l *Logger) getWriter(category Category) (io.Writer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", category, today)
	path := filepath.Join(l.logDir, filename)

	if writer, exists := l.writers[category]; exists {
		if l.files[category] == path {
			return writer, nil
		}
		writer.Close()
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l.writers[category] = file
	l.files[category] = path
	return file, nil
}

func (l *Logger) Log(entry LogEntry) {
	entry.Timestamp = time.Now()

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Printf("Error marshaling log entry: %v\n", err)
		return
	}

	writer, err := l.getWriter(entry.Category)
	if err != nil {
		fmt.Printf("Error getting log writer: %v\n", err)
	} else {
		fmt.Fprintln(writer, string(jsonData))
	}

	if l.console {
		l.printToConsole(entry)
	}
}

// printToConsole prints formatted log to console
func (l *Logger) printToConsole(entry LogEntry) {
	timestamp := entry.Timestamp.Format("15:04:05.000")

	levelColors := map[Level]string{
		LevelDebug: "\033[36m", // Cyan
		LevelInfo:  "\033[32m", // Green
		LevelWarn:  "\033[33m", // Yellow
		LevelError: "\033[31m", // Red
	}
	reset := "\033[0m"

	color := levelColors[entry.Level]

	fmt.Printf("%s[%s]%s [%s] [%s] %s: %s",
		color,
		entry.Level,
		reset,
		timestamp,
		entry.Category,
		entry.Action,
		entry.Message,
	)

	if entry.UserID != "" {
		fmt.Printf(" (user: %s)", entry.UserID)
	}
	if entry.Duration != "" {
		fmt.Printf(" (duration: %s)", entry.Duration)
	}
	if entry.Error != "" {
		fmt.Printf(" ERROR: %s", entry.Error)
	}
	fmt.Println()

	if len(entry.Data) > 0 {
		dataJSON, _ := json.MarshalIndent(entry.Data, "    ", "  ")
		fmt.Printf("    Data: %s\n", string(dataJSON))
	}
}

// Close closes all file writers
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.writers {
		writer.Close()
	}
	l.writers = make(map[Category]*os.File)
	l.files = make(map[Category]string)
}

// Default returns the default logger
func Default() *Logger {
	if defaultLogger == nil {
		Init("logs", true)
	}
	return defaultLogger
}

func log(level Level, category Category, action, message string, err error, data map[string]interface{}) {
	entry := LogEntry{
		Level:    level,
		Category: category,
		Action:   action,
		Message:  message,
		Data:     data,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	Default().Log(entry)
}

// Helper functions for common log operations

// API logs API request/response events
func API(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryAPI, action, message, nil, data)
}

// APIError logs API errors
func APIError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryAPI, action, message, err, data)
}

// DB logs database operations
func DB(action, message string, data map[string]interface{}) {
	log(LevelDebug, CategoryDB, action, message, nil, data)
}

// DBError logs database errors
func DBError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryDB, action, message, err, data)
}

// Group logs group engine operations
func Group(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryGroup, action, message, nil, data)
}

// GroupWarn logs recoverable group engine conditions
func GroupWarn(action, message string, data map[string]interface{}) {
	log(LevelWarn, CategoryGroup, action, message, nil, data)
}

// GroupError logs group engine errors
func GroupError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryGroup, action, message, err, data)
}

// Batch logs batch processing events
func Batch(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryBatch, action, message, nil, data)
}

// BatchWarn logs skipped faces and downgraded engine failures
func BatchWarn(action, message string, data map[string]interface{}) {
	log(LevelWarn, CategoryBatch, action, message, nil, data)
}

// BatchError logs batch processing errors
func BatchError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryBatch, action, message, err, data)
}

// Probe logs image reachability probe results
func Probe(action, message string, data map[string]interface{}) {
	log(LevelDebug, CategoryProbe, action, message, nil, data)
}

// Reconcile logs reconciler repairs
func Reconcile(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryReconcile, action, message, nil, data)
}

// ReconcileError logs reconciler errors
func ReconcileError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryReconcile, action, message, err, data)
}

// Scheduler logs scheduler events
func Scheduler(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryScheduler, action, message, nil, data)
}

// SchedulerWarn logs scheduler warnings
func SchedulerWarn(action, message string, data map[string]interface{}) {
	log(LevelWarn, CategoryScheduler, action, message, nil, data)
}

// SchedulerError logs scheduler errors
func SchedulerError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryScheduler, action, message, err, data)
}

// WebSocket logs WebSocket related events
func WebSocket(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryWebSocket, action, message, nil, data)
}

// WebSocketError logs WebSocket errors
func WebSocketError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryWebSocket, action, message, err, data)
}

// Startup logs startup/initialization events
func Startup(action, message string, data map[string]interface{}) {
	log(LevelInfo, CategoryStartup, action, message, nil, data)
}

// StartupWarn logs startup warnings
func StartupWarn(action, message string, data map[string]interface{}) {
	log(LevelWarn, CategoryStartup, action, message, nil, data)
}

// StartupError logs startup errors
func StartupError(action, message string, err error, data map[string]interface{}) {
	log(LevelError, CategoryStartup, action, message, err, data)
}

// Error logs an error for an arbitrary category
func Error(category Category, action, message string, err error, data map[string]interface{}) {
	log(LevelError, category, action, message, err, data)
}
