package evaluationhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"perfhrm/internal/domain/evaluation"
	"perfhrm/internal/transport/http/api"
	"perfhrm/internal/transport/http/middleware"
)

func errorStatus(err error) int {
	switch evaluation.KindOf(err) {
	case evaluation.KindNotFound:
		return http.StatusNotFound
	case evaluation.KindValidation:
		return http.StatusBadRequest
	case evaluation.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// failEvaluation writes the envelope for an engine error. Internal failures
// are logged and reported without their cause.
func failEvaluation(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("evaluation request failed", "err", err, "path", r.URL.Path, "requestId", reqID)
		api.Fail(w, status, string(evaluation.KindTransitionFailure), "evaluation update failed", reqID)
		return
	}
	message := err.Error()
	var evalErr *evaluation.Error
	if errors.As(err, &evalErr) && evalErr.Message != "" {
		message = evalErr.Message
	}
	api.Fail(w, status, string(evaluation.KindOf(err)), message, reqID)
}
