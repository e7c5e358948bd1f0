package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/http/middleware"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("SITECTL")
	viper.AutomaticEnv()
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestCarryForwardCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sites/site-1/carry-forward" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["expected_week_key"] != "2024-W10" {
			t.Errorf("expected pinned week, got %+v", body)
		}
		_ = json.NewEncoder(w).Encode(domain.CarryForwardResult{SiteID: "site-1", From: "2024-W10", To: "2024-W11", CarriedCount: 4})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output, err := runCommand(t, "carry-forward", "site-1", "--expect", "2024-W10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "2024-W10 -> 2024-W11") || !strings.Contains(output, "carried 4") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestCarryForwardCommand_PinsCurrentWeekWithoutExpect(t *testing.T) {
	resetViper()
	if err := carryForwardCmd.Flags().Set("expect", ""); err != nil {
		t.Fatalf("reset flag: %v", err)
	}

	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/sites/site-1":
			_ = json.NewEncoder(w).Encode(domain.Site{ID: "site-1", Name: "Tower", CurrentWeekKey: "2024-W07"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sites/site-1/carry-forward":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["expected_week_key"] != "2024-W07" {
				t.Errorf("expected week read from the site, got %+v", body)
			}
			_ = json.NewEncoder(w).Encode(domain.CarryForwardResult{SiteID: "site-1", From: "2024-W07", To: "2024-W08", CarriedCount: 1})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output, err := runCommand(t, "carry-forward", "site-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected site read then carry-forward, got %v", calls)
	}
	if !strings.Contains(output, "2024-W07 -> 2024-W08") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestCarryForwardCommand_RejectsMalformedExpect(t *testing.T) {
	resetViper()
	viper.Set("url", "http://127.0.0.1:1")

	_, err := runCommand(t, "carry-forward", "site-1", "--expect", "2024-10")
	if err == nil || !strings.Contains(err.Error(), "YYYY-Www") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"conflict","message":"site site-1 is on 2024-W11, expected 2024-W10: write conflict"},"request_id":"req-1"}`))
	}))
	defer server.Close()

	_, err := NewSiteClient(server.URL, "").CarryForward("site-1", "2024-W10")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "conflict" || apiErr.RequestID != "req-1" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}

	plain := decodeAPIError(http.StatusBadGateway, []byte("upstream down"))
	if !errors.As(plain, &apiErr) || apiErr.Message != "upstream down" || apiErr.Code != "" {
		t.Errorf("expected raw body fallback, got %+v", plain)
	}
}

func TestRolloverCommand_WaitsForJobs(t *testing.T) {
	resetViper()

	var mu sync.Mutex
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/rollovers":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"jobs":[{"job_id":"job-1","site_id":"site-1","expected_week_key":"2024-W10","status":"pending"}],"total":1}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-1":
			mu.Lock()
			polls++
			mu.Unlock()
			_, _ = w.Write([]byte(`{"job_id":"job-1","site_id":"site-1","expected_week_key":"2024-W10","status":"done","result":{"site_id":"site-1","from":"2024-W10","to":"2024-W11","carried_count":2}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output, err := runCommand(t, "rollover", "--wait", "--timeout", "5s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polls != 1 {
		t.Errorf("expected one poll, got %d", polls)
	}
	if !strings.Contains(output, "job-1") || !strings.Contains(output, "-> 2024-W11, carried 2") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestSignTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, err := signToken("s3cret", "eng-1", "Ana", domain.RoleEngineer, time.Hour, now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	actor, err := middleware.ParseToken([]byte("s3cret"), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.UID != "eng-1" || actor.Role != domain.RoleEngineer || actor.Name != "Ana" {
		t.Errorf("unexpected actor: %+v", actor)
	}

	if _, err := signToken("", "eng-1", "", domain.RoleAdmin, 0, now); err == nil {
		t.Error("expected error without secret")
	}
	if _, err := signToken("s3cret", "eng-1", "", domain.Role("OWNER"), 0, now); err == nil {
		t.Error("expected error for unknown role")
	}
}

const fixtureYAML = `
users:
  - id: eng-1
    name: Ana
    role: ENGINEER
sites:
  - name: Tower
    location: Rua A
    engineer_id: eng-1
    week_key: 2024-W10
    tasks:
      - title: Pour slab
        priority: HIGH
        day_name: MONDAY
      - title: Install rebar
`

func TestParseFixture(t *testing.T) {
	fixture, err := parseFixture([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fixture.Users) != 1 || len(fixture.Sites) != 1 || len(fixture.Sites[0].Tasks) != 2 {
		t.Fatalf("unexpected fixture: %+v", fixture)
	}
	if fixture.Sites[0].WeekKey != "2024-W10" || fixture.Sites[0].Tasks[0].Priority != domain.PriorityHigh {
		t.Errorf("unexpected site: %+v", fixture.Sites[0])
	}

	_, err = parseFixture([]byte("users:\n  - id: x\n    name: X\n    role: OWNER\nsites:\n  - name: ''\n    week_key: 2024-10\n"))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"users[0]: unknown role", "sites[0]: name is required", "sites[0]: week_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}

	if _, err := parseFixture([]byte("sites:\n  - name: Tower\n    budget: 10\n")); err == nil {
		t.Error("expected unknown field to be rejected")
	}
}

func TestSeedCommand_CreatesEverything(t *testing.T) {
	resetViper()

	var mu sync.Mutex
	calls := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.URL.Path]++
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		switch r.URL.Path {
		case "/v1/sites":
			_, _ = w.Write([]byte(`{"id":"site-xyz","name":"Tower","current_week_key":"2024-W10"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output, err := runCommand(t, "seed", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls["/v1/users"] != 1 || calls["/v1/sites"] != 1 || calls["/v1/sites/site-xyz/tasks"] != 2 {
		t.Errorf("unexpected calls: %+v", calls)
	}
	if !strings.Contains(output, "Seeded 1 user(s), 1 site(s), 2 task(s)") {
		t.Errorf("unexpected output: %s", output)
	}
}
