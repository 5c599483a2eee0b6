package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "bogus", "bizbank", "test")
	logger.Debug("hidden")
	logger.Info("visible")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected a single json record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "visible" || record["service"] != "bizbank" || record["env"] != "test" {
		t.Fatalf("unexpected record %v", record)
	}
}
