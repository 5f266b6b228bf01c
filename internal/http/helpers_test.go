package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yield/internal/domain"
	"yield/internal/identity"
	"yield/internal/service"
)

const testToken = "good-token"

var (
	testMaster = domain.Actor{ID: "7f1c2a52-0000-4000-8000-000000000001", Role: domain.RoleMasterAdmin}
	testLocal  = domain.Actor{ID: "7f1c2a52-0000-4000-8000-000000000002", Role: domain.RoleLocalAdmin,
		LocationID: "7f1c2a52-0000-4000-8000-0000000000a1", RegionID: "7f1c2a52-0000-4000-8000-0000000000f1"}
)

type stubVerifier struct{}

func (stubVerifier) VerifyToken(_ context.Context, token string) (identity.User, error) {
	switch token {
	case testToken:
		return identity.User{ID: testMaster.ID, Email: "master@example.com"}, nil
	case "local-token":
		return identity.User{ID: testLocal.ID}, nil
	case "orphan-token":
		return identity.User{ID: "no-profile"}, nil
	}
	return identity.User{}, identity.ErrInvalidToken
}

type stubResolver struct{}

func (stubResolver) ResolveActor(_ context.Context, userID, _ string) (domain.Actor, error) {
	switch userID {
	case testMaster.ID:
		return testMaster, nil
	case testLocal.ID:
		return testLocal, nil
	}
	return domain.Actor{}, service.ErrNoProfile
}

func newTestRouter(t *testing.T) (*Router, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	auth := NewAuthenticator(stubVerifier{}, stubResolver{}, zap.NewNop())
	return NewRouter(auth, metrics, zap.NewNop()), metrics
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
