package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/classhub/pkg/orgs"
)

func quotaRouter(svc *registryStub) http.Handler {
	router := tenantRouter(svc, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Use(APIQuotaMiddleware(svc))
	return router
}

func TestAPIQuotaMiddleware_WithinQuota(t *testing.T) {
	svc := &registryStub{org: activeOrg()}

	rec := httptest.NewRecorder()
	quotaRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orgs/1/classes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIQuotaMiddleware_QuotaExceeded(t *testing.T) {
	svc := &registryStub{
		org:      activeOrg(),
		quotaErr: &orgs.QuotaExceededError{Kind: orgs.ResourceAPICalls, Current: 10000, Limit: 10000},
	}

	rec := httptest.NewRecorder()
	quotaRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orgs/1/classes", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body["error"])
	assert.Equal(t, "api_calls", body["kind"])
	assert.Equal(t, float64(10000), body["limit"])
}

func TestAPIQuotaMiddleware_UnscopedRouteUnmetered(t *testing.T) {
	svc := &registryStub{
		org:      activeOrg(),
		quotaErr: &orgs.QuotaExceededError{Kind: orgs.ResourceAPICalls, Current: 10000, Limit: 10000},
	}

	// No tenant binding, so the exhausted quota is never consulted
	rec := httptest.NewRecorder()
	quotaRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
