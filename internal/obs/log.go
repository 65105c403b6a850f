package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON log line with common HTTP fields.
func LogRequest(entry map[string]any) {
	emit(entry)
}

// Info writes an info-level line with the given fields.
func Info(msg string, fields map[string]any) {
	emit(line("info", msg, fields))
}

// Warn writes a warn-level line with the given fields.
func Warn(msg string, fields map[string]any) {
	emit(line("warn", msg, fields))
}

// Error writes an error-level line; err is rendered under "error".
func Error(msg string, err error, fields map[string]any) {
	entry := line("error", msg, fields)
	if err != nil {
		entry["error"] = err.Error()
	}
	emit(entry)
}

func line(level, msg string, fields map[string]any) map[string]any {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	return entry
}

func emit(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
