package audithandler

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"perfhrm/internal/domain/audit"
	"perfhrm/internal/domain/auth"
	"perfhrm/internal/transport/http/middleware"
)

type fakeReader struct {
	events    []audit.Event
	listErr   error
	lastLimit int
	lastTen   string
	filter    audit.Filter
}

func (f *fakeReader) Count(ctx context.Context, tenantID string, filter audit.Filter) (int, error) {
	return len(f.events), nil
}

func (f *fakeReader) List(ctx context.Context, tenantID string, filter audit.Filter, includeDetails bool, limit, offset int) ([]audit.Event, error) {
	f.lastLimit = limit
	f.lastTen = tenantID
	f.filter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func newRouter(reader Reader) http.Handler {
	r := chi.NewRouter()
	NewHandler(reader, auth.StaticPermissions{}).RegisterRoutes(r)
	return r
}

func asRole(req *http.Request, role string) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleID: role}))
}

func TestListEventsRequiresAuditPermission(t *testing.T) {
	reader := &fakeReader{events: []audit.Event{{ID: "1", Action: "evaluation.step.approve"}}}
	r := newRouter(reader)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, asRole(httptest.NewRequest(http.MethodGet, "/audit/events", nil), auth.RoleEmployee))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected employee to be forbidden, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, asRole(httptest.NewRequest(http.MethodGet, "/audit/events?action=evaluation.step.approve&limit=5", nil), auth.RoleHR))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("unexpected total header %q", rec.Header().Get("X-Total-Count"))
	}
	if reader.lastTen != "t1" || reader.filter.Action != "evaluation.step.approve" || reader.lastLimit != 5 {
		t.Fatalf("unexpected list arguments: %q %+v %d", reader.lastTen, reader.filter, reader.lastLimit)
	}
}

func TestExportEventsWritesCSV(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	reader := &fakeReader{events: []audit.Event{
		{ID: "1", ActorID: "mgr-1", Action: "evaluation.step.approve", EntityType: "evaluation_step", EntityID: "2026-h1/emp-1/self", CreatedAt: at},
	}}

	rec := httptest.NewRecorder()
	newRouter(reader).ServeHTTP(rec, asRole(httptest.NewRequest(http.MethodGet, "/audit/events/export", nil), auth.RoleHR))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if reader.lastLimit != exportLimit {
		t.Fatalf("expected export limit %d, got %d", exportLimit, reader.lastLimit)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "mgr-1" || rows[1][7] != "2026-03-01T09:00:00Z" {
		t.Fatalf("unexpected csv rows: %v", rows)
	}
}

func TestExportEventsReportsListFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeReader{listErr: errors.New("db down")}).ServeHTTP(rec, asRole(httptest.NewRequest(http.MethodGet, "/audit/events/export", nil), auth.RoleHR))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
