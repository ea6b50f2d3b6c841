package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type samplePayload struct {
	PeriodID string `json:"periodId" validate:"required"`
	Step     string `json:"step" validate:"required,oneof=criteria self primary secondary"`
	Level    string `json:"level,omitempty"`
}

func TestValidatorStructUsesJSONNames(t *testing.T) {
	v := NewValidator()
	v.Struct(samplePayload{Step: "peer"})
	issues := v.Issues()
	if len(issues) != 2 {
		t.Fatalf("expected two issues, got %+v", issues)
	}
	if issues[0].Field != "periodId" || issues[0].Reason != "is required" {
		t.Fatalf("unexpected first issue: %+v", issues[0])
	}
	if issues[1].Field != "step" || issues[1].Reason != "must be one of: criteria self primary secondary" {
		t.Fatalf("unexpected second issue: %+v", issues[1])
	}
}

func TestValidatorRejectWritesEnvelope(t *testing.T) {
	v := NewValidator()
	v.Required("comment", " ", "is required")
	v.Enum("level", "director", []string{"evaluator", "manager"}, "must be evaluator or manager")

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected reject to write a response")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "validation_error" || len(body.Error.Details.Fields) != 2 || body.RequestID != "req-1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Window(items, Pagination{Limit: 2, Offset: 1}); len(got) != 2 || got[0] != 2 {
		t.Fatalf("unexpected window: %v", got)
	}
	if got := Window(items, Pagination{Limit: 10, Offset: 4}); len(got) != 1 || got[0] != 5 {
		t.Fatalf("unexpected tail window: %v", got)
	}
	if got := Window(items, Pagination{Limit: 2, Offset: 9}); len(got) != 0 {
		t.Fatalf("expected empty window, got %v", got)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(r); got != "192.0.2.1" {
		t.Fatalf("expected remote host, got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r); got != "198.51.100.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
