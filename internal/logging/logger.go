package logging

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// Logger provides structured JSON logging scoped to one component.
type Logger struct {
	component     string
	correlationID string
	out           io.Writer
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Component     string                 `json:"component,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Message       string                 `json:"message"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// NewLogger creates a logger for a component.
func NewLogger(component string) *Logger {
	return &Logger{component: component, out: os.Stdout}
}

// WithCorrelationID returns a copy of the logger that stamps every entry
// with the given correlation id.
func (l *Logger) WithCorrelationID(id string) *Logger {
	return &Logger{component: l.component, correlationID: id, out: l.out}
}

// Info logs an info level message.
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log("INFO", message, fields...)
}

// Error logs an error level message.
func (l *Logger) Error(message string, err error, fields ...map[string]interface{}) {
	fieldsMap := mergeFields(fields...)
	if err != nil {
		fieldsMap["error"] = err.Error()
	}
	l.log("ERROR", message, fieldsMap)
}

// Warn logs a warning level message.
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log("WARN", message, fields...)
}

// Debug logs a debug level message.
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log("DEBUG", message, fields...)
}

func (l *Logger) log(level, message string, fields ...map[string]interface{}) {
	entry := LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Level:         level,
		Component:     l.component,
		CorrelationID: l.correlationID,
		Message:       message,
		Fields:        mergeFields(fields...),
	}

	bytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to a plain line if JSON marshaling fails
		io.WriteString(l.out, level+": "+message+"\n")
		return
	}

	l.out.Write(append(bytes, '\n'))
}

func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}
