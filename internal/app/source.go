package app

import (
	"context"
	"sync/atomic"

	"pixelpet/internal/githubapi"
)

// clientSource holds the active GitHub client behind an atomic pointer so
// a runtime login can swap credentials without rebuilding the analyzer or
// the sync loop.
type clientSource struct {
	current atomic.Pointer[githubapi.Client]
}

func newClientSource(client *githubapi.Client) *clientSource {
	source := &clientSource{}
	source.current.Store(client)
	return source
}

func (s *clientSource) Swap(client *githubapi.Client) {
	s.current.Store(client)
}

func (s *clientSource) AuthenticatedUser(ctx context.Context) (githubapi.UserProfile, error) {
	return s.current.Load().AuthenticatedUser(ctx)
}

func (s *clientSource) GetRepository(ctx context.Context, ref githubapi.RepoRef) (githubapi.RepositoryInfo, error) {
	return s.current.Load().GetRepository(ctx, ref)
}

func (s *clientSource) ListBranches(ctx context.Context, ref githubapi.RepoRef) ([]githubapi.Branch, error) {
	return s.current.Load().ListBranches(ctx, ref)
}

func (s *clientSource) ListCommitsPage(ctx context.Context, ref githubapi.RepoRef, opts githubapi.CommitListOptions) ([]githubapi.Commit, error) {
	return s.current.Load().ListCommitsPage(ctx, ref, opts)
}

func (s *clientSource) GetCommitDetail(ctx context.Context, ref githubapi.RepoRef, sha string) (githubapi.Commit, error) {
	return s.current.Load().GetCommitDetail(ctx, ref, sha)
}

func (s *clientSource) ListLanguages(ctx context.Context, ref githubapi.RepoRef) ([]string, error) {
	return s.current.Load().ListLanguages(ctx, ref)
}

func (s *clientSource) ListTopics(ctx context.Context, ref githubapi.RepoRef) ([]string, error) {
	return s.current.Load().ListTopics(ctx, ref)
}

func (s *clientSource) ListRootEntries(ctx context.Context, ref githubapi.RepoRef) ([]githubapi.RootEntry, error) {
	return s.current.Load().ListRootEntries(ctx, ref)
}
