package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/analyzer"
	"pixelpet/internal/config"
	"pixelpet/internal/game"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/health"
	"pixelpet/internal/metrics"
	"pixelpet/internal/statestore"
	syncpkg "pixelpet/internal/sync"
)

var testNow = time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)

type fakeCommitAnalyzer struct {
	result analyzer.Result
	err    error
	class  analyzer.Classification
}

func (f *fakeCommitAnalyzer) AnalyzeCommits(ctx context.Context, ref githubapi.RepoRef, author analyzer.Author) (analyzer.Result, error) {
	if f.err != nil {
		return analyzer.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeCommitAnalyzer) ClassifyRepository(ctx context.Context, ref githubapi.RepoRef) analyzer.Classification {
	return f.class
}

func newTestRuntime(t *testing.T, fake *fakeCommitAnalyzer) *Runtime {
	t.Helper()

	store := statestore.NewMemoryStore()
	owner, err := game.NewOwner(context.Background(), store, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOwner: %v", err)
	}
	owner.Now = func() time.Time { return testNow }
	seq := 0
	owner.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	owner.RandInt = func(n int) int { return 0 }

	runtime := &Runtime{
		cfg:          &config.Config{},
		logger:       zap.NewNop(),
		store:        store,
		owner:        owner,
		orchestrator: syncpkg.NewOrchestrator(owner, fake, zap.NewNop()),
		evaluator:    health.NewStatusEvaluator(),
	}
	runtime.source = newClientSource(nil)
	runtime.metrics = metrics.NewSet(owner)
	runtime.schedulerRunning.Store(true)
	runtime.decayRunning.Store(true)
	runtime.githubHealthy.Store(true)
	return runtime
}

func doRequest(t *testing.T, handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeInto(t *testing.T, recorder *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPetEndpoints(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	handler := runtime.Handler()

	recorder := doRequest(t, handler, http.MethodGet, "/api/pet", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("get pet before any project: status = %d, want 404", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url":      "https://github.com/octocat/app",
		"species":  "commit_corgi",
		"pet_name": "Rex",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("add project: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, handler, http.MethodGet, "/api/pet", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get pet: status = %d", recorder.Code)
	}
	var created struct {
		Name    string `json:"name"`
		Species string `json:"species"`
		Level   int    `json:"level"`
	}
	decodeInto(t, recorder, &created)
	if created.Name != "Rex" || created.Species != "commit_corgi" || created.Level != 1 {
		t.Fatalf("pet = %+v", created)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/pet/adjust", map[string]int{
		"health_delta":    -10,
		"happiness_delta": 5,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("adjust pet: status = %d", recorder.Code)
	}
	var adjusted struct {
		Health    int `json:"health"`
		Happiness int `json:"happiness"`
	}
	decodeInto(t, recorder, &adjusted)
	if adjusted.Health != 90 || adjusted.Happiness != 100 {
		t.Fatalf("after adjust: health = %d, happiness = %d", adjusted.Health, adjusted.Happiness)
	}
}

func TestProjectEndpoints(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	handler := runtime.Handler()

	recorder := doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "not a repository",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("bad url: status = %d, want 400", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "https://github.com/octocat/app",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("add project: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var project struct {
		ID    string `json:"id"`
		Owner string `json:"owner"`
		Name  string `json:"name"`
	}
	decodeInto(t, recorder, &project)
	if project.Owner != "octocat" || project.Name != "app" {
		t.Fatalf("project = %+v", project)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "https://github.com/Octocat/APP",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate project: status = %d, want 409", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/api/projects", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list projects: status = %d", recorder.Code)
	}
	var listing struct {
		Projects        []json.RawMessage `json:"projects"`
		ActiveProjectID string            `json:"active_project_id"`
	}
	decodeInto(t, recorder, &listing)
	if len(listing.Projects) != 1 || listing.ActiveProjectID != project.ID {
		t.Fatalf("listing = %+v", listing)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/projects/nope/activate", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("activate unknown: status = %d, want 404", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodDelete, "/api/projects/"+project.ID+"?archive=true", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("archive project: status = %d, want 204", recorder.Code)
	}

	// Archiving on delete removes the project and leaves the pet behind as
	// a memory.
	state := runtime.owner.Snapshot()
	if len(state.Projects) != 0 {
		t.Fatalf("projects after delete = %+v", state.Projects)
	}
	if len(state.Memories) != 1 || state.Memories[0].Project.Name != "app" {
		t.Fatalf("memories after delete = %+v", state.Memories)
	}
}

func TestSyncEndpointCreditsCommits(t *testing.T) {
	t.Parallel()

	fake := &fakeCommitAnalyzer{
		result: analyzer.Result{
			Commits: []githubapi.Commit{
				{
					SHA:        "sha-1",
					Message:    "fix bug in parser",
					Branch:     "main",
					AuthoredAt: testNow.Add(-time.Hour),
					Stats:      &githubapi.CommitStats{Total: 10},
				},
			},
			ByDate:     map[string]int{"2026-08-30": 1},
			Streak:     1,
			LastCommit: testNow.Add(-time.Hour),
		},
		class: analyzer.Classification{Class: analyzer.ClassSideHustle},
	}
	runtime := newTestRuntime(t, fake)
	handler := runtime.Handler()

	recorder := doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "https://github.com/octocat/app",
	})
	var project struct {
		ID string `json:"id"`
	}
	decodeInto(t, recorder, &project)

	recorder = doRequest(t, handler, http.MethodPost, "/api/sync", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sync: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var summary syncpkg.Summary
	decodeInto(t, recorder, &summary)
	if summary.Outcome != syncpkg.OutcomeSynced || summary.NewCommits != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	// size 10 scores 25 plus the fix bonus.
	if summary.XPAwarded != 50 {
		t.Fatalf("XPAwarded = %d, want 50", summary.XPAwarded)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/metrics", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d", recorder.Code)
	}
	body := recorder.Body.String()
	for _, want := range []string{
		`pixelpet_sync_runs_total{outcome="synced"} 1`,
		"pixelpet_commits_credited_total 1",
		"pixelpet_xp_credited_total 50",
		`pixelpet_pet_xp{project="octocat/app"} 50`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	// A second run finds nothing new but still counts as a sync.
	recorder = doRequest(t, handler, http.MethodPost, "/api/projects/"+project.ID+"/sync", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("second sync: status = %d", recorder.Code)
	}
	decodeInto(t, recorder, &summary)
	if summary.NewCommits != 0 || summary.XPAwarded != 0 {
		t.Fatalf("second summary = %+v", summary)
	}
}

func TestSyncWithoutActiveProject(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	recorder := doRequest(t, runtime.Handler(), http.MethodPost, "/api/sync", nil)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	handler := runtime.Handler()

	recorder := doRequest(t, handler, http.MethodPost, "/api/simulate", map[string]string{"size": "medium"})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("simulate without project: status = %d, want 409", recorder.Code)
	}

	doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "https://github.com/octocat/app",
	})

	recorder = doRequest(t, handler, http.MethodPost, "/api/simulate", map[string]string{"size": "medium"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("simulate: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var result struct {
		XPAwarded int `json:"xp_awarded"`
		Pet       struct {
			Streak int `json:"streak"`
		} `json:"pet"`
	}
	decodeInto(t, recorder, &result)
	if result.XPAwarded != 25 {
		t.Fatalf("XPAwarded = %d, want 25", result.XPAwarded)
	}
	if result.Pet.Streak != 1 {
		t.Fatalf("streak after simulate = %d, want 1", result.Pet.Streak)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/simulate", map[string]string{"size": "gigantic"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unknown size: status = %d, want 400", recorder.Code)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	handler := runtime.Handler()

	doRequest(t, handler, http.MethodPost, "/api/projects", map[string]string{
		"url": "https://github.com/octocat/app",
	})

	recorder := doRequest(t, handler, http.MethodPost, "/api/memories", nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("save memory: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var memory struct {
		ID      string `json:"id"`
		Project struct {
			Name string `json:"name"`
		} `json:"project"`
	}
	decodeInto(t, recorder, &memory)
	if memory.Project.Name != "app" {
		t.Fatalf("memory = %+v", memory)
	}

	recorder = doRequest(t, handler, http.MethodGet, "/api/memories", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list memories: status = %d", recorder.Code)
	}
	var listing struct {
		Memories []json.RawMessage `json:"memories"`
	}
	decodeInto(t, recorder, &listing)
	if len(listing.Memories) != 1 {
		t.Fatalf("memories listed = %d, want 1", len(listing.Memories))
	}

	recorder = doRequest(t, handler, http.MethodDelete, "/api/memories/nope", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("delete unknown memory: status = %d, want 404", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodDelete, "/api/memories", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("clear memories: status = %d, want 204", recorder.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	handler := runtime.Handler()

	for _, path := range []string{"/livez", "/readyz", "/healthz"} {
		recorder := doRequest(t, handler, http.MethodGet, path, nil)
		if recorder.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, recorder.Code)
		}
	}

	runtime.schedulerRunning.Store(false)
	recorder := doRequest(t, handler, http.MethodGet, "/readyz", nil)
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with stopped scheduler: status = %d, want 503", recorder.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"octocat","name":"The Octocat"}`))
	}))
	defer apiServer.Close()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	runtime.cfg.GitHub.APIBaseURL = apiServer.URL
	runtime.cfg.GitHub.RequestTimeout = 5 * time.Second
	handler := runtime.Handler()

	recorder := doRequest(t, handler, http.MethodPost, "/api/auth/login", map[string]string{"token": " "})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("blank token: status = %d, want 400", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/auth/login", map[string]string{"token": "bad-token"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", recorder.Code)
	}

	recorder = doRequest(t, handler, http.MethodPost, "/api/auth/login", map[string]string{"token": "good-token"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var identity struct {
		Login string `json:"login"`
	}
	decodeInto(t, recorder, &identity)
	if identity.Login != "octocat" {
		t.Fatalf("login = %q, want octocat", identity.Login)
	}

	state := runtime.owner.Snapshot()
	if state.Identity.Login != "octocat" {
		t.Fatalf("stored identity = %+v", state.Identity)
	}
	// The verified token lands in the state document so a restart reuses it.
	if state.Token != "good-token" {
		t.Fatalf("stored token = %q, want good-token", state.Token)
	}
}

func TestStateEndpoint(t *testing.T) {
	t.Parallel()

	runtime := newTestRuntime(t, &fakeCommitAnalyzer{})
	recorder := doRequest(t, runtime.Handler(), http.MethodGet, "/api/state", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var state struct {
		Version int `json:"version"`
	}
	decodeInto(t, recorder, &state)
	if state.Version != 2 {
		t.Fatalf("version = %d, want 2", state.Version)
	}
}
