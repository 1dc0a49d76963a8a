// Package analyzer turns raw repository data into sync-ready facts: the
// author's recent commits with detail, daily activity, and the current
// commit streak. It degrades instead of failing: branch and page errors are
// absorbed, and a commit whose detail fetch fails is kept without stats.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"pixelpet/internal/githubapi"
)

const dayFormat = "2006-01-02"

// Defaults bound the GitHub API cost of one analysis pass.
const (
	DefaultLookbackDays   = 90
	DefaultMaxBranches    = 5
	DefaultPagesPerBranch = 3
	DefaultCommitsPerPage = 50
	DefaultDetailLimit    = 50
	fallbackListSize      = 100
)

// RepoSource is the typed GitHub API surface the analyzer consumes.
type RepoSource interface {
	GetRepository(ctx context.Context, ref githubapi.RepoRef) (githubapi.RepositoryInfo, error)
	ListBranches(ctx context.Context, ref githubapi.RepoRef) ([]githubapi.Branch, error)
	ListCommitsPage(ctx context.Context, ref githubapi.RepoRef, opts githubapi.CommitListOptions) ([]githubapi.Commit, error)
	GetCommitDetail(ctx context.Context, ref githubapi.RepoRef, sha string) (githubapi.Commit, error)
	ListLanguages(ctx context.Context, ref githubapi.RepoRef) ([]string, error)
	ListTopics(ctx context.Context, ref githubapi.RepoRef) ([]string, error)
	ListRootEntries(ctx context.Context, ref githubapi.RepoRef) ([]githubapi.RootEntry, error)
}

// Author identifies whose commits to count.
type Author struct {
	Login string
}

// Config bounds one analysis pass. Zero values fall back to the defaults.
type Config struct {
	LookbackDays   int
	MaxBranches    int
	PagesPerBranch int
	CommitsPerPage int
	DetailLimit    int
}

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	if c.MaxBranches <= 0 {
		c.MaxBranches = DefaultMaxBranches
	}
	if c.PagesPerBranch <= 0 {
		c.PagesPerBranch = DefaultPagesPerBranch
	}
	if c.CommitsPerPage <= 0 {
		c.CommitsPerPage = DefaultCommitsPerPage
	}
	if c.DetailLimit <= 0 {
		c.DetailLimit = DefaultDetailLimit
	}
	return c
}

// Result is the outcome of one analysis pass. Commits are ordered newest
// first and deduplicated across branches; the branch a commit was first
// seen on wins.
type Result struct {
	Commits    []githubapi.Commit
	ByDate     map[string]int
	Streak     int
	LastCommit time.Time
}

// Analyzer walks a repository's branches and pages within configured caps.
type Analyzer struct {
	source RepoSource
	cfg    Config
	logger *zap.Logger

	// Now is injectable for tests.
	Now func() time.Time
}

// New creates an Analyzer over source.
func New(source RepoSource, cfg Config, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		source: source,
		cfg:    cfg.withDefaults(),
		logger: logger,
		Now:    time.Now,
	}
}

// AnalyzeCommits collects the author's commits in the lookback window. A
// remote failure on the primary branch walk falls through to an unfiltered
// listing; only a failure of that last resort, with nothing collected, is
// reported as an error.
func (a *Analyzer) AnalyzeCommits(ctx context.Context, ref githubapi.RepoRef, author Author) (Result, error) {
	now := a.Now().UTC()
	since := now.AddDate(0, 0, -a.cfg.LookbackDays)

	branches := a.branchesToScan(ctx, ref)

	seen := map[string]bool{}
	var commits []githubapi.Commit
	for _, branch := range branches {
		for _, commit := range a.scanBranch(ctx, ref, branch.Name, author.Login, since) {
			if seen[commit.SHA] {
				continue
			}
			seen[commit.SHA] = true
			commits = append(commits, commit)
		}
	}

	if len(commits) == 0 {
		fallback, err := a.fallbackScan(ctx, ref, author, since)
		if err != nil {
			return Result{}, err
		}
		commits = fallback
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].AuthoredAt.After(commits[j].AuthoredAt)
	})

	a.attachDetail(ctx, ref, commits)

	result := Result{
		Commits: commits,
		ByDate:  map[string]int{},
	}
	for _, commit := range commits {
		result.ByDate[commit.AuthoredAt.UTC().Format(dayFormat)]++
	}
	if len(commits) > 0 {
		result.LastCommit = commits[0].AuthoredAt
	}
	result.Streak = streak(result.ByDate, now)
	return result, nil
}

// branchesToScan lists branches capped at MaxBranches. When listing fails
// the repository's default branch stands in so analysis can still proceed.
func (a *Analyzer) branchesToScan(ctx context.Context, ref githubapi.RepoRef) []githubapi.Branch {
	branches, err := a.source.ListBranches(ctx, ref)
	if err != nil || len(branches) == 0 {
		if err != nil {
			a.logger.Warn("list branches failed, using default branch",
				zap.String("repo", ref.String()),
				zap.Error(err),
			)
		}
		name := "main"
		if info, infoErr := a.source.GetRepository(ctx, ref); infoErr == nil && info.DefaultBranch != "" {
			name = info.DefaultBranch
		}
		return []githubapi.Branch{{Name: name}}
	}
	if len(branches) > a.cfg.MaxBranches {
		branches = branches[:a.cfg.MaxBranches]
	}
	return branches
}

// scanBranch pages through one branch's commits. Page errors end the branch
// walk but never the whole analysis.
func (a *Analyzer) scanBranch(ctx context.Context, ref githubapi.RepoRef, branch, login string, since time.Time) []githubapi.Commit {
	var collected []githubapi.Commit
	for page := 1; page <= a.cfg.PagesPerBranch; page++ {
		commits, err := a.source.ListCommitsPage(ctx, ref, githubapi.CommitListOptions{
			Author:  login,
			Branch:  branch,
			Since:   since,
			Page:    page,
			PerPage: a.cfg.CommitsPerPage,
		})
		if err != nil {
			a.logger.Warn("commit page failed",
				zap.String("repo", ref.String()),
				zap.String("branch", branch),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}
		collected = append(collected, commits...)
		if len(commits) < a.cfg.CommitsPerPage {
			break
		}
	}
	return collected
}

// fallbackScan lists recent commits without an author filter and matches
// the author locally. It runs when the filtered branch walk found nothing,
// which happens when the author's commit email is not linked to their
// account.
func (a *Analyzer) fallbackScan(ctx context.Context, ref githubapi.RepoRef, author Author, since time.Time) ([]githubapi.Commit, error) {
	commits, err := a.source.ListCommitsPage(ctx, ref, githubapi.CommitListOptions{
		Since:   since,
		Page:    1,
		PerPage: fallbackListSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback commit listing for %s: %w", ref, err)
	}

	var matched []githubapi.Commit
	for _, commit := range commits {
		if matchesAuthor(commit, author) {
			matched = append(matched, commit)
		}
	}
	return matched, nil
}

// matchesAuthor matches by login first, then falls back to looking for the
// username as a substring of the commit's free-text author name or email.
// Identity linking on the remote side is unreliable, so the loose match is
// deliberate.
func matchesAuthor(commit githubapi.Commit, author Author) bool {
	if author.Login == "" {
		return false
	}
	if strings.EqualFold(commit.AuthorLogin, author.Login) {
		return true
	}
	needle := strings.ToLower(author.Login)
	return strings.Contains(strings.ToLower(commit.AuthorName), needle) ||
		strings.Contains(strings.ToLower(commit.AuthorEmail), needle)
}

// attachDetail fetches diff stats for the newest commits up to DetailLimit.
// A failed detail fetch leaves that commit without stats.
func (a *Analyzer) attachDetail(ctx context.Context, ref githubapi.RepoRef, commits []githubapi.Commit) {
	limit := a.cfg.DetailLimit
	for i := range commits {
		if i >= limit {
			break
		}
		detailed, err := a.source.GetCommitDetail(ctx, ref, commits[i].SHA)
		if err != nil {
			a.logger.Warn("commit detail failed",
				zap.String("repo", ref.String()),
				zap.String("sha", commits[i].SHA),
				zap.Error(err),
			)
			continue
		}
		commits[i].Stats = detailed.Stats
		commits[i].Files = detailed.Files
	}
}

// streak counts consecutive UTC calendar days with commits, walking back
// from today. A quiet today does not break a streak that ran through
// yesterday.
func streak(byDate map[string]int, now time.Time) int {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	count := 0
	if byDate[day.Format(dayFormat)] > 0 {
		count++
	}
	day = day.AddDate(0, 0, -1)

	for byDate[day.Format(dayFormat)] > 0 {
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

// IsRemoteFailure reports whether err came back from the GitHub API rather
// than from local bookkeeping.
func IsRemoteFailure(err error) bool {
	var remote *githubapi.RemoteError
	return errors.As(err, &remote)
}
