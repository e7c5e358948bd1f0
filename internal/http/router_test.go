package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iago/obra-back/internal/audit"
	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/http/handlers"
	"github.com/iago/obra-back/internal/http/middleware"
	"github.com/iago/obra-back/internal/queue"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/service"
	"github.com/iago/obra-back/internal/weekkey"
	"github.com/iago/obra-back/internal/worker"
)

const routerSecret = "router-secret"

type routerRuntime struct {
	server *httptest.Server
	store  *repository.MemoryStore
	cancel context.CancelFunc
}

func startRouterRuntime(t *testing.T) routerRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)
	clock := func() time.Time { return time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC) }

	store := repository.NewMemoryStore()
	seedRouterStore(t, store)
	localQueue := queue.NewLocalQueue(queue.LocalConfig{RetryDelay: 10 * time.Millisecond}, logger)

	reports := service.NewReportsService(store, service.ReportsConfig{}, clock)
	carry := service.NewCarryForwardService(store, weekkey.WrapFixed53, reports, audit.Discard(), clock)
	api := handlers.NewAPI(handlers.Dependencies{
		Sites:        service.NewSitesService(store, reports, audit.Discard(), clock),
		CarryForward: carry,
		Reports:      reports,
		Snapshots:    service.NewSnapshotsService(store, audit.Discard(), clock),
		Rollovers:    service.NewRolloversService(store, localQueue, clock),
		WrapMode:     weekkey.WrapFixed53,
		Clock:        clock,
	})
	router := NewRouter(RouterDependencies{
		Context:        ctx,
		API:            api,
		Logger:         logger,
		JWTSecret:      routerSecret,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, store, carry, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return routerRuntime{
		server: server,
		store:  store,
		cancel: func() {
			cancel()
			server.Close()
		},
	}
}

func seedRouterStore(t *testing.T, store *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	users := []domain.User{
		{ID: "admin-1", Name: "Admin", Role: domain.RoleAdmin},
		{ID: "eng-1", Name: "Ana", Role: domain.RoleEngineer},
		{ID: "eng-2", Name: "Bruno", Role: domain.RoleEngineer},
		{ID: "acc-1", Name: "Carla", Role: domain.RoleAccountant},
	}
	for i := range users {
		if err := store.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := store.CreateSite(ctx, &domain.Site{
		ID:                   "site-1",
		Name:                 "Tower",
		AssignedEngineerID:   "eng-1",
		AssignedEngineerName: "Ana",
		CurrentWeekKey:       "2024-W02",
	}); err != nil {
		t.Fatalf("seed site: %v", err)
	}
}

func tokenFor(t *testing.T, uid string, role domain.Role) string {
	t.Helper()
	token, err := middleware.SignToken([]byte(routerSecret), middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func sendJSON(
	t *testing.T,
	client *http.Client,
	method string,
	url string,
	token string,
	payload any,
) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return response.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	envelope, _ := body["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func waitForJobDone(t *testing.T, client *http.Client, baseURL, token, jobID string, timeout time.Duration) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, body := sendJSON(t, client, http.MethodGet, fmt.Sprintf("%s/v1/jobs/%s", baseURL, jobID), token, nil)
		if status == http.StatusOK {
			switch body["status"] {
			case "done":
				return body
			case "failed":
				t.Fatalf("job %s failed: %+v", jobID, body)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for job %s to reach done", jobID)
	return nil
}

func TestCarryForwardFlow(t *testing.T) {
	runtime := startRouterRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL
	adminToken := tokenFor(t, "admin-1", domain.RoleAdmin)
	engineerToken := tokenFor(t, "eng-1", domain.RoleEngineer)

	status, body := sendJSON(t, client, http.MethodPost, baseURL+"/v1/sites/site-1/tasks", engineerToken, map[string]any{
		"title":    "Install rebar",
		"priority": "HIGH",
		"day_name": "MONDAY",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating task, got %d: %+v", status, body)
	}
	if body["week_key"] != "2024-W02" || body["status"] != "PENDING" {
		t.Fatalf("unexpected task: %+v", body)
	}

	status, body = sendJSON(t, client, http.MethodPost, baseURL+"/v1/sites/site-1/carry-forward", engineerToken, map[string]any{
		"expected_week_key": "2024-W02",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 carrying forward, got %d: %+v", status, body)
	}
	if body["from"] != "2024-W02" || body["to"] != "2024-W03" || body["carried_count"] != float64(1) {
		t.Fatalf("unexpected carry-forward result: %+v", body)
	}

	status, body = sendJSON(t, client, http.MethodPost, baseURL+"/v1/sites/site-1/carry-forward", engineerToken, map[string]any{
		"expected_week_key": "2024-W02",
	})
	if status != http.StatusConflict || errorCode(body) != "conflict" {
		t.Fatalf("expected conflict on stale week, got %d: %+v", status, body)
	}
	if body["request_id"] == "" {
		t.Fatalf("expected request id in error envelope: %+v", body)
	}

	status, body = sendJSON(t, client, http.MethodGet, baseURL+"/v1/sites/site-1/tasks", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing tasks, got %d", status)
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one carried task in current week, got %+v", body)
	}
	carried, _ := items[0].(map[string]any)
	if carried["week_key"] != "2024-W03" || carried["pending_weeks"] != float64(1) || carried["carried_from_task_id"] == nil {
		t.Fatalf("unexpected carried task: %+v", carried)
	}

	status, body = sendJSON(t, client, http.MethodGet, baseURL+"/v1/reports/overdue", adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on overdue report, got %d", status)
	}
	if body["total"] != float64(1) {
		t.Fatalf("expected the original task to be overdue, got %+v", body)
	}
}

func TestRoleChecks(t *testing.T) {
	runtime := startRouterRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/v1/sites", "", http.StatusUnauthorized, "unauthorized"},
		{"other engineer carries forward", http.MethodPost, "/v1/sites/site-1/carry-forward", tokenFor(t, "eng-2", domain.RoleEngineer), http.StatusForbidden, "forbidden"},
		{"engineer reads reports", http.MethodGet, "/v1/reports/sites", tokenFor(t, "eng-1", domain.RoleEngineer), http.StatusForbidden, "forbidden"},
		{"accountant reads reports", http.MethodGet, "/v1/reports/engineers?sort=most_overdue", tokenFor(t, "acc-1", domain.RoleAccountant), http.StatusOK, ""},
		{"accountant saves snapshot", http.MethodPost, "/v1/snapshots", tokenFor(t, "acc-1", domain.RoleAccountant), http.StatusForbidden, "forbidden"},
		{"unknown site", http.MethodGet, "/v1/sites/nope", tokenFor(t, "admin-1", domain.RoleAdmin), http.StatusNotFound, "not_found"},
		{"bad snapshot key", http.MethodGet, "/v1/snapshots/2024-13", tokenFor(t, "admin-1", domain.RoleAdmin), http.StatusBadRequest, "invalid_request"},
		{"unknown report", http.MethodGet, "/v1/reports/costs", tokenFor(t, "admin-1", domain.RoleAdmin), http.StatusNotFound, "not_found"},
		{"health is public", http.MethodGet, "/healthz", "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := sendJSON(t, client, tc.method, baseURL+tc.path, tc.token, nil)
			if status != tc.status {
				t.Fatalf("expected %d, got %d: %+v", tc.status, status, body)
			}
			if tc.code != "" && errorCode(body) != tc.code {
				t.Fatalf("expected code %q, got %+v", tc.code, body)
			}
		})
	}
}

func TestRolloverJobCompletes(t *testing.T) {
	runtime := startRouterRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL
	adminToken := tokenFor(t, "admin-1", domain.RoleAdmin)

	status, body := sendJSON(t, client, http.MethodPost, baseURL+"/v1/rollovers", adminToken, map[string]any{})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %+v", status, body)
	}
	jobs, _ := body["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %+v", body)
	}
	job, _ := jobs[0].(map[string]any)
	jobID, _ := job["job_id"].(string)

	done := waitForJobDone(t, client, baseURL, adminToken, jobID, 3*time.Second)
	result, _ := done["result"].(map[string]any)
	if result["to"] != "2024-W03" {
		t.Fatalf("unexpected job result: %+v", done)
	}

	site, err := runtime.store.GetSite(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("load site: %v", err)
	}
	if site.CurrentWeekKey != "2024-W03" || site.WeekAdvancedBy != "admin-1" {
		t.Fatalf("unexpected site after rollover: %+v", site)
	}
}

func TestSnapshotSaveAndFetch(t *testing.T) {
	runtime := startRouterRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL
	adminToken := tokenFor(t, "admin-1", domain.RoleAdmin)
	accountantToken := tokenFor(t, "acc-1", domain.RoleAccountant)

	status, body := sendJSON(t, client, http.MethodPost, baseURL+"/v1/snapshots", adminToken, nil)
	if status != http.StatusOK || body["week_key"] != "2024-W02" {
		t.Fatalf("unexpected save response %d: %+v", status, body)
	}

	status, body = sendJSON(t, client, http.MethodGet, baseURL+"/v1/snapshots/2024-W02", accountantToken, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 fetching snapshot, got %d: %+v", status, body)
	}
	summary, _ := body["summary"].(map[string]any)
	if summary["total_sites"] != float64(1) {
		t.Fatalf("unexpected snapshot summary: %+v", body)
	}

	status, body = sendJSON(t, client, http.MethodGet, baseURL+"/v1/weeks/current", accountantToken, nil)
	if status != http.StatusOK || body["week_key"] != "2024-W02" || body["next_week_key"] != "2024-W03" {
		t.Fatalf("unexpected current week %d: %+v", status, body)
	}
}

func TestRouteTemplate(t *testing.T) {
	cases := map[string]string{
		"/healthz":                    "/healthz",
		"/v1/sites":                   "/v1/sites",
		"/v1/sites/abc":               "/v1/sites/{id}",
		"/v1/sites/abc/carry-forward": "/v1/sites/{id}/carry-forward",
		"/v1/snapshots/2024-W02":      "/v1/snapshots/{week_key}",
		"/v1/reports/overdue":         "/v1/reports/overdue",
		"/v1/jobs/0b0f5d0e-1111-2222": "/v1/jobs/{id}",
	}
	for path, want := range cases {
		if got := routeTemplate(path); got != want {
			t.Fatalf("routeTemplate(%q) = %q, want %q", path, got, want)
		}
	}
}
