package obs

import "testing"

func TestEventLevel(t *testing.T) {
	if got := eventLevel(map[string]any{"msg": "connected"}); got != "info" {
		t.Fatalf("plain event level = %q", got)
	}
	if got := eventLevel(map[string]any{"error": "boom"}); got != "error" {
		t.Fatalf("error event level = %q", got)
	}
}

func TestLogEventKeepsExplicitLevel(t *testing.T) {
	entry := map[string]any{"level": "warn", "error": "slow checkpoint"}
	LogEvent(entry)
	if entry["level"] != "warn" {
		t.Fatalf("explicit level overwritten: %v", entry["level"])
	}
}
