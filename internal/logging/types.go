package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Fields tags component log fields with the category/source pair used across dirwatch.
func Fields(category string, fields map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+2)
	merged["dirwatch.category"] = category
	merged["dirwatch.source"] = "backend"
	for key, value := range fields {
		merged[key] = value
	}
	return merged
}
