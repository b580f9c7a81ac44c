package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the module.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogEvent emits a structured JSON log line. Entries without an explicit
// level get one derived from the presence of an error field.
func LogEvent(entry map[string]any) {
	if _, ok := entry["level"]; !ok {
		entry["level"] = eventLevel(entry)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}

func eventLevel(entry map[string]any) string {
	if _, ok := entry["error"]; ok {
		return "error"
	}
	return "info"
}
