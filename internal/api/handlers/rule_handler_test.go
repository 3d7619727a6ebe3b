package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/appfence/appfence/internal/apps"
	"github.com/appfence/appfence/internal/database"
	"github.com/appfence/appfence/internal/models"
	"github.com/appfence/appfence/internal/rules"
	"github.com/appfence/appfence/internal/services"
)

// stubRemote mimics the controller for handler tests.
type stubRemote struct {
	mu       sync.Mutex
	nextID   int
	policies []rules.RemotePolicy
	fail     error
}

func (s *stubRemote) CreatePolicy(ctx context.Context, name string, appIDs, devices []string, enabled bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.nextID++
	id := fmt.Sprintf("remote-%d", s.nextID)
	s.policies = append(s.policies, rules.RemotePolicy{ID: id, Name: name})
	return id, nil
}

func (s *stubRemote) DeletePolicy(ctx context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for i, p := range s.policies {
		if p.ID == remoteID {
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubRemote) ListPolicies(ctx context.Context) ([]rules.RemotePolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]rules.RemotePolicy, len(s.policies))
	copy(out, s.policies)
	return out, nil
}

func testRouter(t *testing.T) (*gin.Engine, *stubRemote) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Operator{}, &models.AuditEvent{}))

	store, err := rules.NewStore(filepath.Join(t.TempDir(), "rules.json"))
	require.NoError(t, err)

	remote := &stubRemote{}
	controller := rules.NewController(store, remote, apps.DefaultCatalog())

	handler := NewRuleHandler(controller,
		services.NewAuditService(db),
		services.NewNotificationService(nil))

	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	return router, remote
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDeclareEndpoint_CreatesRule(t *testing.T) {
	router, remote := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id":   "gaming-ban",
		"apps": []string{"Fortnite"},
		"type": "permanent",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rule rules.BlockRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	require.Equal(t, "gaming-ban", rule.ID)
	require.Equal(t, "remote-1", rule.RemoteID)
	require.Len(t, remote.policies, 1)
}

func TestDeclareEndpoint_GeneratesIDWhenOmitted(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"apps": []string{"YouTube"},
		"type": "permanent",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rule rules.BlockRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	require.NotEmpty(t, rule.ID)
}

func TestDeclareEndpoint_ValidationMapsTo400(t *testing.T) {
	router, remote := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id":   "bad",
		"apps": []string{"UnknownApp"},
		"type": "permanent",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, remote.policies)
}

func TestDeclareEndpoint_DuplicateMapsTo409(t *testing.T) {
	router, _ := testRouter(t)

	body := map[string]interface{}{
		"id":   "dup",
		"apps": []string{"Fortnite"},
		"type": "permanent",
	}
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/api/v1/rules", body).Code)
	require.Equal(t, http.StatusConflict, doJSON(t, router, http.MethodPost, "/api/v1/rules", body).Code)
}

func TestDeclareEndpoint_UntilTimeShorthand(t *testing.T) {
	router, _ := testRouter(t)

	target := time.Now().Add(30 * time.Minute).Format("15:04")
	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id":         "bedtime",
		"apps":       []string{"YouTube"},
		"type":       "until",
		"until_time": target,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var rule rules.BlockRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	require.NotNil(t, rule.EndAt)
	require.True(t, rule.EndAt.After(time.Now()))
}

func TestDeclareEndpoint_NotAuthenticatedMapsTo401(t *testing.T) {
	router, remote := testRouter(t)
	remote.fail = rules.ErrNotAuthenticated

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id":   "x",
		"apps": []string{"Fortnite"},
		"type": "permanent",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeclareEndpoint_RemoteFailureMapsTo502(t *testing.T) {
	router, remote := testRouter(t)
	remote.fail = &rules.RemoteError{Kind: rules.RemoteServerError, Status: 500, Message: "boom"}

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id":   "x",
		"apps": []string{"Fortnite"},
		"type": "permanent",
	})
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRevokeEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id": "r", "apps": []string{"Fortnite"}, "type": "permanent",
	})

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodDelete, "/api/v1/rules/r", nil).Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, router, http.MethodDelete, "/api/v1/rules/r", nil).Code)
}

func TestRevokeAllEndpoint_ReportsAndClears(t *testing.T) {
	router, _ := testRouter(t)

	for _, id := range []string{"a", "b"} {
		doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
			"id": id, "apps": []string{"Fortnite"}, "type": "permanent",
		})
	}

	w := doJSON(t, router, http.MethodDelete, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report rules.RevokeAllReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, 2, report.Deleted)

	list := doJSON(t, router, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, "[]", list.Body.String())
}

func TestSyncAndCleanupEndpoints(t *testing.T) {
	router, remote := testRouter(t)

	remote.policies = []rules.RemotePolicy{
		{ID: "orphan", Name: "appfence: Roblox"},
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/rules/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/rules/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report rules.CleanupReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Equal(t, 1, report.Deleted)
	require.Empty(t, remote.policies)
}

func TestAuditEndpoint_RecordsDeclares(t *testing.T) {
	router, _ := testRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"id": "audited", "apps": []string{"Fortnite"}, "type": "permanent",
	})

	w := doJSON(t, router, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var events []models.AuditEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	require.Equal(t, models.AuditActionDeclare, events[0].Action)
	require.True(t, events[0].Success)
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 8, 28, 20, 0, 0, 0, time.Local)

	ahead, err := nextOccurrence("21:30", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(90*time.Minute), ahead)

	tomorrow, err := nextOccurrence("07:00", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(11*time.Hour), tomorrow)

	_, err = nextOccurrence("25:99", now)
	require.Error(t, err)
}
