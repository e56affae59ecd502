package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/twitch-sources/internal/simulator"
)

// TestRunDependencies starts simulator runs.
type TestRunDependencies interface {
	StartTest(ctx context.Context, owner, widget string) error
}

// TestRunHandler serves the admin trigger.
type TestRunHandler struct {
	deps TestRunDependencies
}

// NewTestRunHandler creates a test run handler.
func NewTestRunHandler(deps TestRunDependencies) *TestRunHandler {
	return &TestRunHandler{deps: deps}
}

// HandleTest handles GET /api/test?test=<widget>. The caller must already
// be authenticated by RequireSession.
func (h *TestRunHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	const op = "api.test"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	owner, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusForbidden, "access_denied", NewKind(op, ErrForbidden))
		return
	}
	widget := r.URL.Query().Get("test")

	err := h.deps.StartTest(r.Context(), owner, widget)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, nil)
	case errors.Is(err, simulator.ErrAlreadyRunning):
		writeError(w, http.StatusForbidden, "access_denied", WrapKind(op, ErrForbidden, err))
	case errors.Is(err, simulator.ErrUnknownWidget):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
