package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/member-signups/internal/handler"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/repository"
	"github.com/noah-isme/member-signups/internal/rpc"
	"github.com/noah-isme/member-signups/internal/service"
	"github.com/noah-isme/member-signups/pkg/config"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return testRouterWithSnapshots(t, nil)
}

func testRouterWithSnapshots(t *testing.T, snapshots *service.SnapshotService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("router-api-key"), bcrypt.MinCost)
	require.NoError(t, err)

	requester := rpc.RequesterFunc(func(_ context.Context, model, action string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		if action == rpc.ActionFieldsGet {
			return map[string]interface{}{"name": map[string]interface{}{"string": "Name"}}, nil
		}
		return []interface{}{}, nil
	})
	metrics := service.NewMetricsService()
	signups := service.NewSignupService(service.SignupServiceParams{Requester: requester})
	deps := routerDeps{
		cfg:     &config.Config{APIPrefix: "/api/v1"},
		logger:  zap.NewNop(),
		metrics: metrics,
		auth: service.NewAuthService(nil, nil, service.AuthConfig{
			AccessTokenSecret: "secret",
			AccessTokenExpiry: time.Hour,
			APIKeyHash:        string(hash),
		}),
		signups:  handler.NewSignupHandler(signups, nil, service.NewExportService(nil, service.ExportConfig{}, nil, nil, nil), metrics, nil),
		entities: handler.NewEntityHandler(service.NewEntityService(requester, nil)),
	}
	if snapshots != nil {
		deps.signups.WithSnapshots(snapshots)
		deps.snapshots = handler.NewSnapshotHandler(snapshots)
	}
	return newRouter(deps)
}

func bearer(t *testing.T, r *gin.Engine) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"api_key":"router-api-key","client":"test"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var token models.TokenResponse
	require.NoError(t, decodeData(rec, &token))
	return "Bearer " + token.AccessToken
}

func TestRouterHealthIsPublic(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterServesSwaggerDocs(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Contains(t, doc.Paths, "/api/v1/signups")
	assert.Contains(t, doc.Paths, "/api/v1/published/{event_code}")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterGuardsAPI(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/entities/Event/fields", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterTokenFlow(t *testing.T) {
	r := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"api_key":"router-api-key","client":"test"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var token models.TokenResponse
	require.NoError(t, decodeData(rec, &token))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities/Event/fields", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/signups", strings.NewReader(`{"main_event_code":"none"}`))
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/api/v1/auth/token",status="200"} 1`)
}

func TestRouterSnapshotRoutesOnlyWhenEnabled(t *testing.T) {
	r := testRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterPostgresOnlyHasNoPublishedRoute(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := repository.NewSnapshotRepository(sqlx.NewDb(db, "sqlmock"))
	r := testRouterWithSnapshots(t, service.NewSnapshotService(store, nil, 0, nil))
	auth := bearer(t, r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/published/14600", nil)
	req.Header.Set("Authorization", auth)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/signups", strings.NewReader(`{"main_event_code":"14600","publish":true}`))
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterRedisOnlyRejectsPersist(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	published := repository.NewPublishRepository(client, "signups", nil)
	r := testRouterWithSnapshots(t, service.NewSnapshotService(nil, published, 0, nil))
	auth := bearer(t, r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil)
	req.Header.Set("Authorization", auth)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/signups", strings.NewReader(`{"main_event_code":"14600","persist":true}`))
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduledQueryCarriesQuestionsAndLimit(t *testing.T) {
	q := scheduledQuery(config.SignupsConfig{
		MainEventCode:   "14600",
		OtherEventCodes: []string{"14605"},
		Limit:           40,
		Questions:       map[string]interface{}{"Diet": "none", "Workshops": []interface{}{}},
	})
	assert.Equal(t, "14600", q.MainEventCode)
	assert.Equal(t, []string{"14605"}, q.OtherEventCodes)
	assert.Equal(t, map[string]interface{}{"Diet": "none", "Workshops": []interface{}{}}, q.Questions)
	require.NotNil(t, q.Limit)
	assert.Equal(t, 40, *q.Limit)

	assert.Nil(t, scheduledQuery(config.SignupsConfig{MainEventCode: "14600"}).Limit)
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	var deadline time.Time
	next := rpc.RequesterFunc(func(ctx context.Context, _, _ string, _ []interface{}, _ map[string]interface{}) (interface{}, error) {
		deadline, _ = ctx.Deadline()
		return nil, nil
	})
	_, err := withTimeout(next, time.Minute).Execute(context.Background(), "m", "a", nil, nil)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	assert.NotNil(t, withTimeout(next, 0))
}

func decodeData(rec *httptest.ResponseRecorder, dest interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, dest)
}
