package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestBuildBaseQuery(t *testing.T) {
	s := &Service{}
	query, args := s.buildBaseQuery("SELECT COUNT(1)", "t1", Filter{Action: "evaluation.step.approve", EntityID: "p:e:self"})
	if !strings.Contains(query, "action = $2") || !strings.Contains(query, "entity_id = $3") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 3 || args[0] != "t1" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := LogRecorder{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := rec.Record(context.Background(), "t1", "u1", "evaluation.step.approve", "evaluation_scope", "p:e:self", "req-1", "10.0.0.1",
		map[string]string{"status": "pending"}, map[string]string{"status": "approved"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line, got %q", buf.String())
	}
	if line["action"] != "evaluation.step.approve" || line["after"] != `{"status":"approved"}` {
		t.Fatalf("unexpected log line: %v", line)
	}
}
