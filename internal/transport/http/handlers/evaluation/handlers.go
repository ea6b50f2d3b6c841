package evaluationhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"perfhrm/internal/domain/audit"
	"perfhrm/internal/domain/auth"
	"perfhrm/internal/domain/evaluation"
	"perfhrm/internal/domain/notifications"
	"perfhrm/internal/transport/http/api"
	"perfhrm/internal/transport/http/middleware"
	"perfhrm/internal/transport/http/shared"
)

// ReportQueue schedules an asynchronous status report for a period.
type ReportQueue interface {
	EnqueueStatusReport(periodID string) bool
}

type Handler struct {
	Service       *evaluation.Service
	Perms         middleware.PermissionStore
	Audit         audit.Recorder
	Notifications *notifications.Service
	Reports       ReportQueue
}

func NewHandler(service *evaluation.Service, perms middleware.PermissionStore, recorder audit.Recorder, notifier *notifications.Service) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: recorder, Notifications: notifier}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermEvaluationRead, h.Perms)
	submit := middleware.RequirePermission(auth.PermEvaluationSubmit, h.Perms)
	approve := middleware.RequirePermission(auth.PermEvaluationApprove, h.Perms)
	respond := middleware.RequirePermission(auth.PermEvaluationRespond, h.Perms)
	report := middleware.RequirePermission(auth.PermEvaluationReport, h.Perms)

	r.Route("/evaluation", func(r chi.Router) {
		r.Route("/periods/{periodID}", func(r chi.Router) {
			r.With(report).Get("/status", h.handleStatusBoard)
			r.With(report).Get("/status-report", h.handleStatusReport)
			if h.Reports != nil {
				r.With(report).Post("/status-report/jobs", h.handleQueueStatusReport)
			}
			r.With(read).Get("/revision-requests", h.handleListRevisions)

			r.Route("/employees/{employeeID}", func(r chi.Router) {
				r.With(read).Get("/status", h.handleStatus)
				r.With(read).Get("/items", h.handleListItems)
				r.With(approve).Put("/steps/{step}/approval", h.handleStepApproval)
				r.With(submit).Post("/bulk-submit", h.handleBulkSubmit)
				r.With(submit).Post("/bulk-reset", h.handleBulkReset)
			})
		})

		r.With(submit).Put("/items", h.handleSaveItem)
		r.With(read).Get("/items/{itemID}", h.handleGetItem)
		r.With(submit).Post("/items/{itemID}/submit", h.handleSubmitItem)
		r.With(submit).Post("/items/{itemID}/reset", h.handleResetItem)

		r.With(read).Get("/revision-requests/{requestID}", h.handleGetRevision)
		r.With(respond).Post("/revision-requests/{requestID}/respond", h.handleRespond)
		r.With(respond).Post("/revision-requests/{requestID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.GetStatus(r.Context(), chi.URLParam(r, "periodID"), chi.URLParam(r, "employeeID"))
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	api.Success(w, status, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatusBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.Service.PeriodStatusBoard(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	w.Header().Set("X-Total-Count", strconv.Itoa(len(board)))
	api.Success(w, shared.Window(board, page), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	periodID := chi.URLParam(r, "periodID")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=evaluation-status-%s.pdf", sanitizeFilename(periodID)))
	if err := h.Service.WriteStatusReport(r.Context(), periodID, w); err != nil {
		w.Header().Del("Content-Disposition")
		failEvaluation(w, r, err)
		return
	}
}

func (h *Handler) handleQueueStatusReport(w http.ResponseWriter, r *http.Request) {
	periodID := strings.TrimSpace(chi.URLParam(r, "periodID"))
	reqID := middleware.GetRequestID(r.Context())
	if !h.Reports.EnqueueStatusReport(periodID) {
		api.Fail(w, http.StatusServiceUnavailable, "queue_full", "report queue is full, retry later", reqID)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, api.Envelope{Success: true, Data: map[string]string{"periodId": periodID, "status": "queued"}, RequestID: reqID})
}

type approvalRequest struct {
	Status      string `json:"status" validate:"required,oneof=pending approved revision_requested revision_completed"`
	Comment     string `json:"comment" validate:"max=4000"`
	EvaluatorID string `json:"evaluatorId"`
}

func (h *Handler) handleStepApproval(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload approvalRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	step, ok := evaluation.ParseStep(chi.URLParam(r, "step"))
	if !ok {
		v.Add("step", "must be one of: criteria self primary secondary")
	}
	if v.Reject(w, reqID) {
		return
	}

	status, _ := evaluation.ParseStatus(payload.Status)
	in := evaluation.StepApprovalInput{
		PeriodID:    chi.URLParam(r, "periodID"),
		EmployeeID:  chi.URLParam(r, "employeeID"),
		Step:        step,
		Status:      status,
		Comment:     payload.Comment,
		EvaluatorID: payload.EvaluatorID,
	}
	result, err := h.Service.UpdateStepApproval(r.Context(), in, user.UserID)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}

	if !result.NoOp {
		h.audit(r, user, transitionAction(status), "step_approval", result.Scope.LockKey(),
			map[string]any{"status": result.Previous},
			map[string]any{"status": result.Current, "itemsChanged": result.ItemsChanged})
	}
	switch {
	case result.RevisionOpened && result.Revision != nil:
		h.notify(r, user.TenantID, result.Revision.RecipientID, notifications.TypeRevisionRequested,
			"Revision requested",
			fmt.Sprintf("The %s evaluation for period %s needs revision: %s", result.Scope.Step, result.Scope.PeriodID, result.Revision.Comment))
	case status == evaluation.StatusApproved && !result.NoOp:
		h.notify(r, user.TenantID, result.Scope.EmployeeID, notifications.TypeStepApproved,
			"Evaluation step approved",
			fmt.Sprintf("The %s evaluation for period %s was approved.", result.Scope.Step, result.Scope.PeriodID))
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	filter := evaluation.ItemFilter{
		PeriodID:    chi.URLParam(r, "periodID"),
		EmployeeID:  chi.URLParam(r, "employeeID"),
		EvaluatorID: strings.TrimSpace(r.URL.Query().Get("evaluatorId")),
		ProjectID:   strings.TrimSpace(r.URL.Query().Get("projectId")),
	}
	if raw := r.URL.Query().Get("step"); raw != "" {
		step, ok := evaluation.ParseStep(raw)
		if !ok {
			shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "step", Reason: "must be one of: criteria self primary secondary"}})
			return
		}
		filter.Step = step
	}
	items, err := h.Service.ListItems(r.Context(), filter)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	api.Success(w, items, reqID)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.GetItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	api.Success(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveItem(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload evaluation.SaveItemInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	item, err := h.Service.SaveItem(r.Context(), payload)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	h.audit(r, user, evaluation.ActionSaveItem, "evaluation_item", item.ID, nil,
		map[string]any{"step": item.Step, "wbsItemId": item.WBSItemID, "score": item.Score})
	api.Success(w, item, reqID)
}

type levelRequest struct {
	Level string `json:"level" validate:"required,oneof=evaluator manager"`
}

func (h *Handler) handleSubmitItem(w http.ResponseWriter, r *http.Request) {
	h.changeItem(w, r, evaluation.ActionSubmitItem, h.Service.SubmitItem)
}

func (h *Handler) handleResetItem(w http.ResponseWriter, r *http.Request) {
	h.changeItem(w, r, evaluation.ActionResetItem, h.Service.ResetItem)
}

func (h *Handler) changeItem(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, string, evaluation.Level) (evaluation.EvaluationItem, error)) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload levelRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	level, _ := evaluation.ParseLevel(payload.Level)
	item, err := apply(r.Context(), chi.URLParam(r, "itemID"), level)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	h.audit(r, user, action, "evaluation_item", item.ID, nil, map[string]any{
		"level":                level,
		"submittedToEvaluator": item.SubmittedToEvaluator,
		"submittedToManager":   item.SubmittedToManager,
	})
	api.Success(w, item, reqID)
}

type bulkRequest struct {
	Step        string `json:"step" validate:"omitempty,oneof=criteria self primary secondary"`
	EvaluatorID string `json:"evaluatorId"`
	ProjectID   string `json:"projectId"`
	Level       string `json:"level" validate:"required,oneof=evaluator manager"`
}

func (h *Handler) handleBulkSubmit(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, evaluation.ActionSubmitItem, h.Service.BulkSubmit)
}

func (h *Handler) handleBulkReset(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, evaluation.ActionResetItem, h.Service.BulkReset)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request, action string, apply func(context.Context, evaluation.BulkScope, evaluation.Level) (evaluation.BulkResult, error)) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload bulkRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, reqID) {
		return
	}

	step, _ := evaluation.ParseStep(payload.Step)
	level, _ := evaluation.ParseLevel(payload.Level)
	scope := evaluation.BulkScope{
		PeriodID:    chi.URLParam(r, "periodID"),
		EmployeeID:  chi.URLParam(r, "employeeID"),
		ProjectID:   strings.TrimSpace(payload.ProjectID),
		Step:        step,
		EvaluatorID: strings.TrimSpace(payload.EvaluatorID),
	}
	result, err := apply(r.Context(), scope, level)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	h.audit(r, user, action+".bulk", "evaluation_scope", scope.PeriodID+":"+scope.EmployeeID, nil, map[string]any{
		"level":     level,
		"step":      scope.Step,
		"succeeded": result.SubmittedCount,
		"failed":    result.FailedCount,
	})
	api.Success(w, result, reqID)
}

func (h *Handler) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	q := r.URL.Query()
	filter := evaluation.RevisionFilter{
		PeriodID:    chi.URLParam(r, "periodID"),
		EmployeeID:  strings.TrimSpace(q.Get("employeeId")),
		RecipientID: strings.TrimSpace(q.Get("recipientId")),
	}

	v := shared.NewValidator()
	if raw := q.Get("step"); raw != "" {
		step, ok := evaluation.ParseStep(raw)
		if !ok {
			v.Add("step", "must be one of: criteria self primary secondary")
		}
		filter.Step = step
	}
	if raw := q.Get("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			v.Add("open", "must be a boolean")
		} else {
			completed := !open
			filter.IsCompleted = &completed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	requests, err := h.Service.ListRevisionRequests(r.Context(), filter)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	w.Header().Set("X-Total-Count", strconv.Itoa(len(requests)))
	api.Success(w, shared.Window(requests, page), reqID)
}

func (h *Handler) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	request, err := h.Service.GetRevisionRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	api.Success(w, request, middleware.GetRequestID(r.Context()))
}

type respondRequest struct {
	Comment string `json:"comment" validate:"required,max=4000"`
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload respondRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	v.Required("comment", payload.Comment, "is required")
	if v.Reject(w, reqID) {
		return
	}

	requestID := chi.URLParam(r, "requestID")
	result, err := h.Service.RespondToRevision(r.Context(), requestID, payload.Comment, user.UserID)
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	if !result.NoOp {
		h.audit(r, user, evaluation.ActionRespondRevision, "revision_request", requestID,
			map[string]any{"status": result.Previous},
			map[string]any{"status": result.Current})
		if result.Revision != nil {
			h.notify(r, user.TenantID, result.Revision.RequestedBy, notifications.TypeRevisionCompleted,
				"Revision completed",
				fmt.Sprintf("The %s evaluation of %s for period %s was revised: %s", result.Scope.Step, result.Scope.EmployeeID, result.Scope.PeriodID, result.Revision.ResponseComment))
		}
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	request, err := h.Service.MarkRevisionRead(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		failEvaluation(w, r, err)
		return
	}
	api.Success(w, request, middleware.GetRequestID(r.Context()))
}

func (h *Handler) audit(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, middleware.GetRequestID(r.Context()), shared.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "err", err, "action", action)
	}
}

func (h *Handler) notify(r *http.Request, tenantID, userID, ntype, title, body string) {
	if h.Notifications == nil {
		return
	}
	if err := h.Notifications.Create(r.Context(), tenantID, userID, ntype, title, body); err != nil {
		slog.Warn("notification create failed", "err", err, "type", ntype)
	}
}

func transitionAction(status evaluation.Status) string {
	switch status {
	case evaluation.StatusApproved:
		return evaluation.ActionApprove
	case evaluation.StatusRevisionRequested:
		return evaluation.ActionRequestRevision
	default:
		return evaluation.ActionResetPending
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.GetRequestID(r.Context()))
			return false
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func sanitizeFilename(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, value)
}
