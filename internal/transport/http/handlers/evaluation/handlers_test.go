package evaluationhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perfhrm/internal/domain/auth"
	"perfhrm/internal/domain/evaluation"
	"perfhrm/internal/domain/notifications"
	"perfhrm/internal/transport/http/middleware"
)

const (
	testSecret = "handler-test-secret-0123456789abcdef"
	tenant     = "tenant-1"
	period     = "2026-h1"
	employee   = "emp-1"
	manager    = "mgr-1"
)

type auditEntry struct {
	actorID  string
	action   string
	entityID string
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (c *captureRecorder) Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, auditEntry{actorID: actorID, action: action, entityID: entityID})
	return nil
}

func (c *captureRecorder) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.action)
	}
	return out
}

type queueStub struct {
	accept  bool
	periods []string
}

func (q *queueStub) EnqueueStatusReport(periodID string) bool {
	q.periods = append(q.periods, periodID)
	return q.accept
}

type fixture struct {
	router   http.Handler
	audit    *captureRecorder
	notifier *notifications.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithReports(t, nil)
}

func newFixtureWithReports(t *testing.T, reports ReportQueue) fixture {
	t.Helper()
	dir := evaluation.NewMemoryDirectory(evaluation.Fixtures{Periods: []evaluation.PeriodFixture{{
		ID: period,
		Employees: []evaluation.EmployeeFixture{{
			ID:      employee,
			WBS:     []evaluation.WBSAssignment{{WBSItemID: "w1", ProjectID: "p1"}, {WBSItemID: "w2", ProjectID: "p1"}},
			Primary: []string{manager},
		}},
	}}})
	var (
		clockMu sync.Mutex
		now     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	tick := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	svc := evaluation.NewService(evaluation.NewMemoryStore(), dir, dir, evaluation.WithClock(tick))
	recorder := &captureRecorder{}
	notifier := notifications.New(notifications.NewMemoryStore())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(testSecret))
	r.Route("/api/v1", func(r chi.Router) {
		h := NewHandler(svc, auth.StaticPermissions{}, recorder, notifier)
		h.Reports = reports
		h.RegisterRoutes(r)
	})
	return fixture{router: r, audit: recorder, notifier: notifier}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f fixture) do(t *testing.T, method, path, userID, role string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/api/v1/evaluation"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: userID, TenantID: tenant, RoleID: role, RoleName: role}, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (f fixture) saveSelf(t *testing.T, wbs string) evaluation.EvaluationItem {
	t.Helper()
	score := 75.0
	rec, env := f.do(t, http.MethodPut, "/items", employee, auth.RoleEmployee, evaluation.SaveItemInput{
		PeriodID:   period,
		EmployeeID: employee,
		Step:       evaluation.StepSelf,
		WBSItemID:  wbs,
		Content:    "shipped " + wbs,
		Score:      &score,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[evaluation.EvaluationItem](t, env)
}

func TestRevisionRoundTripOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.saveSelf(t, "w1")
	f.saveSelf(t, "w2")

	rec, env := f.do(t, http.MethodPost, "/periods/"+period+"/employees/"+employee+"/bulk-submit", employee, auth.RoleEmployee, map[string]string{"level": "evaluator"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bulk := decodeData[evaluation.BulkResult](t, env)
	assert.Equal(t, 2, bulk.SubmittedCount)
	assert.Zero(t, bulk.FailedCount)

	rec, env = f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/self/approval", manager, auth.RoleEvaluator, map[string]string{
		"status":  "revision_requested",
		"comment": "add measurable outcomes",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requested := decodeData[evaluation.TransitionResult](t, env)
	assert.True(t, requested.RevisionOpened)
	assert.Equal(t, evaluation.StatusRevisionRequested, requested.Current)
	require.NotNil(t, requested.Revision)
	assert.Equal(t, employee, requested.Revision.RecipientID)

	count, err := f.notifier.Count(context.Background(), tenant, employee)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, env = f.do(t, http.MethodGet, "/periods/"+period+"/revision-requests?open=true&employeeId="+employee, manager, auth.RoleEvaluator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	open := decodeData[[]evaluation.RevisionRequest](t, env)
	require.Len(t, open, 1)

	rec, _ = f.do(t, http.MethodPost, "/revision-requests/"+open[0].ID+"/read", employee, auth.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/revision-requests/"+open[0].ID+"/respond", employee, auth.RoleEmployee, map[string]string{"comment": "outcomes added"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	responded := decodeData[evaluation.TransitionResult](t, env)
	assert.Equal(t, evaluation.StatusRevisionCompleted, responded.Current)

	count, err = f.notifier.Count(context.Background(), tenant, manager)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, env = f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/self/approval", manager, auth.RoleEvaluator, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeData[evaluation.TransitionResult](t, env)
	assert.Equal(t, evaluation.StatusApproved, approved.Current)

	rec, env = f.do(t, http.MethodGet, "/periods/"+period+"/employees/"+employee+"/status", employee, auth.RoleEmployee, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeData[evaluation.EmployeeStatus](t, env)
	assert.Equal(t, evaluation.StatusApproved, status.SelfEvaluation.Status)
	assert.Equal(t, 2, status.SelfEvaluation.CompletedCount)

	assert.Equal(t, []string{
		evaluation.ActionSaveItem,
		evaluation.ActionSaveItem,
		evaluation.ActionSubmitItem + ".bulk",
		evaluation.ActionRequestRevision,
		evaluation.ActionRespondRevision,
		evaluation.ActionApprove,
	}, f.audit.actions())
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	f := newFixture(t)
	item := f.saveSelf(t, "w1")

	rec, env := f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/self/approval", manager, auth.RoleEvaluator, map[string]string{"status": "revision_completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(evaluation.KindValidation), env.Error.Code)

	rec, _ = f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/peer/approval", manager, auth.RoleEvaluator, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/revision-requests/missing/respond", employee, auth.RoleEmployee, map[string]string{"comment": "done"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(evaluation.KindNotFound), env.Error.Code)

	rec, _ = f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/self/approval", manager, auth.RoleEvaluator, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/items/"+item.ID+"/reset", employee, auth.RoleEmployee, map[string]string{"level": "evaluator"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(evaluation.KindConflict), env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/items/"+item.ID+"/submit", employee, auth.RoleEmployee, map[string]string{"level": "director"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesEnforcePermissions(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/periods/"+period+"/employees/"+employee+"/status", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodPut, "/periods/"+period+"/employees/"+employee+"/steps/self/approval", employee, auth.RoleEmployee, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/periods/"+period+"/status-report", manager, auth.RoleEvaluator, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatusReportReturnsPDF(t *testing.T) {
	f := newFixture(t)
	f.saveSelf(t, "w1")

	rec, _ := f.do(t, http.MethodGet, "/periods/"+period+"/status-report", "hr-1", auth.RoleHR, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec, env := f.do(t, http.MethodGet, "/periods/"+period+"/status", "hr-1", auth.RoleHR, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decodeData[[]evaluation.EmployeeStatus](t, env)
	require.Len(t, board, 1)
	assert.Equal(t, evaluation.StatusInProgress, board[0].SelfEvaluation.Status)
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	f := newFixture(t)
	token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: employee, TenantID: tenant, RoleID: auth.RoleEmployee, RoleName: auth.RoleEmployee}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/evaluation/items", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_payload")
}

func TestStatusReportJobIsQueued(t *testing.T) {
	rec, _ := newFixture(t).do(t, http.MethodPost, "/periods/"+period+"/status-report/jobs", "hr-1", auth.RoleHR, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	queue := &queueStub{accept: true}
	f := newFixtureWithReports(t, queue)

	rec, _ = f.do(t, http.MethodPost, "/periods/"+period+"/status-report/jobs", manager, auth.RoleEvaluator, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := f.do(t, http.MethodPost, "/periods/"+period+"/status-report/jobs", "hr-1", auth.RoleHR, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "queued", decodeData[map[string]string](t, env)["status"])
	assert.Equal(t, []string{period}, queue.periods)

	queue.accept = false
	rec, env = f.do(t, http.MethodPost, "/periods/"+period+"/status-report/jobs", "hr-1", auth.RoleHR, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "queue_full", env.Error.Code)
}
