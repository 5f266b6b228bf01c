package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"yield/internal/identity"
	"yield/internal/policy"
	"yield/internal/repository"
	"yield/internal/service"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body required")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, out)
}

// pathSegments returns the path below prefix split on "/". Empty segments are kept
// so that "items//x" never matches a route.
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(rest, "/"), "/")
}

// writeError maps service and policy errors onto HTTP statuses.
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var denial *policy.Denial
	var input *service.InputError
	switch {
	case errors.As(err, &denial):
		status := http.StatusForbidden
		if errors.Is(err, policy.ErrInvalidActorState) || errors.Is(err, policy.ErrInvalidTarget) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, Fail(denial.Error()))
	case errors.As(err, &input):
		writeJSON(w, http.StatusBadRequest, Fail(input.Message))
	case errors.Is(err, service.ErrNoProfile):
		writeJSON(w, http.StatusForbidden, Fail("No profile for requester"))
	case errors.Is(err, service.ErrBaselineLocked):
		writeJSON(w, http.StatusConflict, Fail("Baseline is locked"))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("Not found"))
	case errors.Is(err, identity.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, Result[any]{Code: ResultTokenExpired, Type: "error", Message: "Invalid session"})
	case errors.Is(err, identity.ErrRejected):
		msg := strings.TrimPrefix(err.Error(), identity.ErrRejected.Error()+": ")
		writeJSON(w, http.StatusBadRequest, Fail(msg))
	default:
		logger.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("Internal error"))
	}
}
