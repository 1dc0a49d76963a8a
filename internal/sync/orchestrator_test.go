package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/analyzer"
	"pixelpet/internal/game"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/statestore"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fakeAnalyzer struct {
	result       analyzer.Result
	err          error
	class        string
	block        chan struct{}
	analyzeCalls int
}

func (f *fakeAnalyzer) AnalyzeCommits(context.Context, githubapi.RepoRef, analyzer.Author) (analyzer.Result, error) {
	f.analyzeCalls++
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeAnalyzer) ClassifyRepository(context.Context, githubapi.RepoRef) analyzer.Classification {
	return analyzer.Classification{Class: f.class}
}

func newTestWorld(t *testing.T) (*game.Owner, string) {
	t.Helper()
	ctx := context.Background()
	owner, err := game.NewOwner(ctx, statestore.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewOwner: %v", err)
	}
	owner.Now = func() time.Time { return testNow }
	nextID := 0
	owner.NewID = func() string {
		nextID++
		return fmt.Sprintf("id-%d", nextID)
	}
	owner.SetIdentity(ctx, game.Identity{Login: "octocat", Name: "Octo Cat"})
	project, err := owner.AddProject(ctx, game.ProjectParams{Owner: "octocat", Name: "hello-world"})
	if err != nil {
		t.Fatalf("AddProject: %v", err)
	}
	return owner, project.ID
}

func detailedCommit(sha string, total int, at time.Time) githubapi.Commit {
	return githubapi.Commit{
		SHA:        sha,
		Message:    "update",
		AuthoredAt: at,
		Stats:      &githubapi.CommitStats{Total: total},
	}
}

func TestSyncProjectCreditsNewCommits(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	source := &fakeAnalyzer{
		result: analyzer.Result{
			Commits: []githubapi.Commit{
				detailedCommit("aaa", 3, testNow.Add(-time.Hour)),
				{SHA: "bbb", Message: "update", AuthoredAt: testNow.Add(-2 * time.Hour)},
			},
			Streak:     4,
			LastCommit: testNow.Add(-time.Hour),
		},
		class: analyzer.ClassSideHustle,
	}
	orch := NewOrchestrator(owner, source, zap.NewNop())

	summary, err := orch.SyncProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if summary.Outcome != OutcomeSynced {
		t.Fatalf("outcome = %q", summary.Outcome)
	}
	if summary.TotalCommits != 2 || summary.NewCommits != 2 {
		t.Fatalf("commit counts: %+v", summary)
	}
	// A 3-line commit pays 10, a commit without detail pays the flat rate.
	if summary.XPAwarded != 10+30 {
		t.Fatalf("xp = %d, want 40", summary.XPAwarded)
	}
	if summary.Streak != 4 || summary.Classification != analyzer.ClassSideHustle {
		t.Fatalf("summary = %+v", summary)
	}

	project := owner.Snapshot().Projects[0]
	if project.Pet.XP != 40 {
		t.Fatalf("pet xp = %d", project.Pet.XP)
	}
	if project.Pet.Streak != 4 {
		t.Fatalf("pet streak = %d", project.Pet.Streak)
	}
	if project.Classification != analyzer.ClassSideHustle || project.CommitCount != 2 {
		t.Fatalf("project = %+v", project)
	}
	if len(project.RecentCommits) != 2 || project.RecentCommits[0].XP != 10 {
		t.Fatalf("recent commits = %+v", project.RecentCommits)
	}
}

func TestSyncProjectSecondRunCreditsNothing(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	source := &fakeAnalyzer{
		result: analyzer.Result{
			Commits:    []githubapi.Commit{detailedCommit("aaa", 3, testNow.Add(-time.Hour))},
			Streak:     1,
			LastCommit: testNow.Add(-time.Hour),
		},
		class: analyzer.ClassGeneral,
	}
	orch := NewOrchestrator(owner, source, zap.NewNop())
	ctx := context.Background()

	first, err := orch.SyncProject(ctx, projectID)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.XPAwarded == 0 {
		t.Fatal("first sync credited nothing")
	}

	second, err := orch.SyncProject(ctx, projectID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Outcome != OutcomeSynced || second.NewCommits != 0 || second.XPAwarded != 0 {
		t.Fatalf("second sync = %+v", second)
	}
	project := owner.Snapshot().Projects[0]
	if project.Pet.XP != first.XPAwarded {
		t.Fatalf("pet xp = %d after idempotent sync, want %d", project.Pet.XP, first.XPAwarded)
	}
	// The already-credited commit is still carried as a display record.
	if len(project.RecentCommits) != 1 || project.RecentCommits[0].XP != 10 {
		t.Fatalf("recent commits after idempotent sync = %+v", project.RecentCommits)
	}
}

func TestSyncRecordsCommitsEvenWhenAllAreCredited(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	// Credit the commit out of band so the sync itself has nothing fresh.
	if err := owner.CreditCommits(context.Background(), projectID, []string{"aaa"}, 10); err != nil {
		t.Fatalf("CreditCommits: %v", err)
	}

	source := &fakeAnalyzer{
		result: analyzer.Result{
			Commits:    []githubapi.Commit{detailedCommit("aaa", 3, testNow.Add(-time.Hour))},
			Streak:     1,
			LastCommit: testNow.Add(-time.Hour),
		},
		class: analyzer.ClassGeneral,
	}
	orch := NewOrchestrator(owner, source, zap.NewNop())

	summary, err := orch.SyncProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if summary.Outcome != OutcomeSynced || summary.NewCommits != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	project := owner.Snapshot().Projects[0]
	if len(project.RecentCommits) != 1 || project.RecentCommits[0].SHA != "aaa" {
		t.Fatalf("recent commits = %+v", project.RecentCommits)
	}
	if project.Streak != 1 {
		t.Fatalf("streak = %d", project.Streak)
	}
}

func TestSyncProjectNoCommits(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	source := &fakeAnalyzer{class: analyzer.ClassGeneral}
	orch := NewOrchestrator(owner, source, zap.NewNop())

	summary, err := orch.SyncProject(context.Background(), projectID)
	if err != nil {
		t.Fatalf("SyncProject: %v", err)
	}
	if summary.Outcome != OutcomeNoCommits {
		t.Fatalf("outcome = %q", summary.Outcome)
	}
	if got := owner.Snapshot().Projects[0]; got.LastSyncedAt.IsZero() {
		t.Fatal("no-commit sync did not record the run")
	}
}

func TestSyncProjectAnalyzerFailure(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	source := &fakeAnalyzer{err: &githubapi.RemoteError{Status: 502, Message: "bad gateway"}}
	orch := NewOrchestrator(owner, source, zap.NewNop())

	summary, err := orch.SyncProject(context.Background(), projectID)
	if err == nil {
		t.Fatal("expected error")
	}
	if summary.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q", summary.Outcome)
	}
	if got := owner.Snapshot().Projects[0].Pet.XP; got != 0 {
		t.Fatalf("failed sync credited xp: %d", got)
	}
}

func TestSyncProjectUnknownProject(t *testing.T) {
	t.Parallel()

	owner, _ := newTestWorld(t)
	orch := NewOrchestrator(owner, &fakeAnalyzer{}, zap.NewNop())

	if _, err := orch.SyncProject(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown project")
	}
}

func TestSyncProjectInFlightGuard(t *testing.T) {
	t.Parallel()

	owner, projectID := newTestWorld(t)
	source := &fakeAnalyzer{block: make(chan struct{})}
	orch := NewOrchestrator(owner, source, zap.NewNop())
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		orch.SyncProject(ctx, projectID)
	}()

	// Wait for the first sync to take the slot.
	deadline := time.After(2 * time.Second)
	for {
		orch.mu.Lock()
		taken := orch.inflight[projectID]
		orch.mu.Unlock()
		if taken {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := orch.SyncProject(ctx, projectID)
	if !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("error = %v, want ErrSyncInFlight", err)
	}

	close(source.block)
	<-firstDone

	// The slot frees once the first sync finishes.
	source.block = nil
	if _, err := orch.SyncProject(ctx, projectID); err != nil {
		t.Fatalf("sync after release: %v", err)
	}
}

func TestSyncActiveRequiresProject(t *testing.T) {
	t.Parallel()

	owner, err := game.NewOwner(context.Background(), statestore.NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewOwner: %v", err)
	}
	orch := NewOrchestrator(owner, &fakeAnalyzer{}, zap.NewNop())

	if _, err := orch.SyncActive(context.Background()); !errors.Is(err, ErrNoActiveProject) {
		t.Fatalf("err = %v, want ErrNoActiveProject", err)
	}
}

func TestSchedulerRunsImmediately(t *testing.T) {
	t.Parallel()

	owner, _ := newTestWorld(t)
	source := &fakeAnalyzer{class: analyzer.ClassGeneral}
	orch := NewOrchestrator(owner, source, zap.NewNop())

	summaries := make(chan Summary, 4)
	scheduler := NewScheduler(orch, time.Hour, zap.NewNop())
	scheduler.OnSummary = func(summary Summary, err error) {
		summaries <- summary
	}

	scheduler.Start(context.Background())
	defer scheduler.Stop()

	select {
	case summary := <-summaries:
		if summary.Outcome != OutcomeNoCommits {
			t.Fatalf("outcome = %q", summary.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ran a cycle")
	}
}
