// Package sync drives one repository's commits into pet progression. The
// orchestrator composes the analyzer with the game state: it discovers
// commits, drops the ones already credited, scores the rest and applies the
// award as one step.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/analyzer"
	"pixelpet/internal/game"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/xp"
)

// ErrSyncInFlight is returned when a sync for the same project is already
// running.
var ErrSyncInFlight = errors.New("sync already in flight for project")

// ErrNoActiveProject is returned when a sync is requested but no project is
// selected.
var ErrNoActiveProject = errors.New("no active project")

// Sync outcomes.
const (
	OutcomeSynced    = "synced"
	OutcomeNoCommits = "no_commits"
	OutcomeFailed    = "failed"
)

// Summary reports what one sync run did.
type Summary struct {
	ProjectID      string    `json:"project_id"`
	Outcome        string    `json:"outcome"`
	TotalCommits   int       `json:"total_commits"`
	NewCommits     int       `json:"new_commits"`
	XPAwarded      int       `json:"xp_awarded"`
	Streak         int       `json:"streak"`
	Classification string    `json:"classification,omitempty"`
	LastCommitAt   time.Time `json:"last_commit_at,omitzero"`
}

// CommitAnalyzer is the analysis surface the orchestrator consumes.
type CommitAnalyzer interface {
	AnalyzeCommits(ctx context.Context, ref githubapi.RepoRef, author analyzer.Author) (analyzer.Result, error)
	ClassifyRepository(ctx context.Context, ref githubapi.RepoRef) analyzer.Classification
}

// Orchestrator runs syncs. At most one sync per project is in flight at a
// time; concurrent requests for the same project are rejected rather than
// queued.
type Orchestrator struct {
	owner    *game.Owner
	analyzer CommitAnalyzer
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(owner *game.Owner, commitAnalyzer CommitAnalyzer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		owner:    owner,
		analyzer: commitAnalyzer,
		logger:   logger,
		inflight: map[string]bool{},
	}
}

func (o *Orchestrator) acquire(projectID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[projectID] {
		return false
	}
	o.inflight[projectID] = true
	return true
}

func (o *Orchestrator) release(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, projectID)
}

// SyncProject analyzes one tracked project and credits any new commits.
func (o *Orchestrator) SyncProject(ctx context.Context, projectID string) (Summary, error) {
	if !o.acquire(projectID) {
		return Summary{}, ErrSyncInFlight
	}
	defer o.release(projectID)

	state := o.owner.Snapshot()
	project := findProject(state, projectID)
	if project == nil {
		return Summary{}, fmt.Errorf("project %s is not tracked", projectID)
	}

	ref := githubapi.RepoRef{Owner: project.Owner, Name: project.Name}
	author := analyzer.Author{Login: state.Identity.Login}

	summary := Summary{ProjectID: projectID, Classification: project.Classification}

	result, err := o.analyzer.AnalyzeCommits(ctx, ref, author)
	if err != nil {
		summary.Outcome = OutcomeFailed
		o.logger.Warn("sync failed",
			zap.String("project", ref.String()),
			zap.Error(err),
		)
		return summary, err
	}

	if project.Classification == "" {
		summary.Classification = o.analyzer.ClassifyRepository(ctx, ref).Class
	}

	summary.TotalCommits = len(result.Commits)
	summary.Streak = result.Streak
	summary.LastCommitAt = result.LastCommit

	if len(result.Commits) == 0 {
		summary.Outcome = OutcomeNoCommits
		if err := o.owner.RecordSyncObservation(ctx, projectID, game.SyncObservation{
			Classification: summary.Classification,
		}); err != nil {
			return summary, err
		}
		return summary, nil
	}

	freshSHAs, err := o.owner.FilterUnprocessed(projectID, commitSHAs(result.Commits))
	if err != nil {
		summary.Outcome = OutcomeFailed
		return summary, err
	}
	freshSet := make(map[string]bool, len(freshSHAs))
	for _, sha := range freshSHAs {
		freshSet[sha] = true
	}
	summary.NewCommits = len(freshSHAs)

	// Every fetched commit becomes a display record, credited or not; the
	// owner's merge keeps earlier records (with their awarded XP) on
	// collisions.
	records := make([]game.CommitRecord, 0, len(result.Commits))
	shas := make([]string, 0, len(freshSHAs))
	total := 0
	for _, commit := range result.Commits {
		award := xp.DetailFreeEstimate
		if commit.Stats != nil {
			award = xp.ForCommit(commit)
		}
		records = append(records, game.CommitRecord{
			SHA:        commit.SHA,
			Message:    commit.Message,
			Branch:     commit.Branch,
			AuthoredAt: commit.AuthoredAt,
			XP:         award,
		})
		if freshSet[commit.SHA] {
			shas = append(shas, commit.SHA)
			total += award
		}
	}

	if len(shas) > 0 {
		if err := o.owner.CreditCommits(ctx, projectID, shas, total); err != nil {
			summary.Outcome = OutcomeFailed
			return summary, err
		}
		summary.XPAwarded = total
	}

	if err := o.owner.RecordSyncObservation(ctx, projectID, game.SyncObservation{
		Streak:         result.Streak,
		LastCommitAt:   result.LastCommit,
		CommitCount:    len(result.Commits),
		Classification: summary.Classification,
		RecentCommits:  records,
	}); err != nil {
		return summary, err
	}
	summary.Outcome = OutcomeSynced
	if len(shas) > 0 {
		o.logger.Info("sync credited commits",
			zap.String("project", ref.String()),
			zap.Int("new_commits", len(shas)),
			zap.Int("xp", total),
			zap.Int("streak", result.Streak),
		)
	}
	return summary, nil
}

// SyncActive syncs the currently active project.
func (o *Orchestrator) SyncActive(ctx context.Context) (Summary, error) {
	state := o.owner.Snapshot()
	if state.ActiveProjectID == "" {
		return Summary{}, ErrNoActiveProject
	}
	return o.SyncProject(ctx, state.ActiveProjectID)
}

func commitSHAs(commits []githubapi.Commit) []string {
	shas := make([]string, 0, len(commits))
	for _, commit := range commits {
		shas = append(shas, commit.SHA)
	}
	return shas
}

func findProject(state *game.State, id string) *game.Project {
	for _, project := range state.Projects {
		if project.ID == id {
			return project
		}
	}
	return nil
}
