package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
)

var repoRefPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`)

// ErrInvalidReference reports a repository reference that cannot be parsed
// into owner and name. It fails fast before any network call.
type ErrInvalidReference struct {
	Raw string
}

// Error implements the error interface.
func (e *ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid repository reference: %q", e.Raw)
}

// RepoRef identifies one repository by owner and name.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String renders the reference as owner/name.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoRef extracts owner and name from a repository URL such as
// https://github.com/owner/name or a bare owner/name pair.
func ParseRepoRef(raw string) (RepoRef, error) {
	trimmed := strings.TrimSpace(raw)

	if match := repoRefPattern.FindStringSubmatch(trimmed); match != nil {
		return RepoRef{
			Owner: match[1],
			Name:  strings.TrimSuffix(match[2], ".git"),
		}, nil
	}

	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.Contains(trimmed, ":") {
		return RepoRef{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}, nil
	}

	return RepoRef{}, &ErrInvalidReference{Raw: raw}
}

// UserProfile is the authenticated user's identity.
type UserProfile struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// RepositoryInfo is repository metadata relevant to classification.
type RepositoryInfo struct {
	Owner         string
	Name          string
	Description   string
	DefaultBranch string
	Private       bool
	Size          int
	Stars         int
	Forks         int
}

// RootEntry is one entry in a repository's root directory listing.
type RootEntry struct {
	Name string
	Type string
}

// Branch is one repository branch.
type Branch struct {
	Name string
}

// CommitStats is the diff statistics block for one commit.
type CommitStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Total     int `json:"total"`
}

// CommitFile is one file touched by a commit.
type CommitFile struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Commit is one commit as seen by the progression engine. Stats and Files
// are nil until commit detail has been fetched. Branch is the branch the
// commit was first observed on.
type Commit struct {
	SHA         string       `json:"sha"`
	Message     string       `json:"message"`
	AuthorLogin string       `json:"author_login"`
	AuthorName  string       `json:"author_name"`
	AuthorEmail string       `json:"author_email"`
	AuthoredAt  time.Time    `json:"authored_at"`
	Branch      string       `json:"branch"`
	Stats       *CommitStats `json:"stats,omitempty"`
	Files       []CommitFile `json:"files,omitempty"`
}

// CommitListOptions filters one page of a commit listing.
type CommitListOptions struct {
	Author  string
	Branch  string
	Since   time.Time
	Page    int
	PerPage int
}

// ClientConfig configures the GitHub API client.
type ClientConfig struct {
	// Token is an opaque bearer credential. Ignored when HTTPClient already
	// carries authentication (app installation mode).
	Token      string
	APIBaseURL string
	HTTPClient *http.Client
}

// Client is a thin authenticated client over the GitHub REST API. It holds
// no business logic and no cache; every operation maps to one endpoint and
// fails with a RemoteError on a non-success HTTP status.
type Client struct {
	gh *github.Client
}

// NewClient creates a GitHub API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	restClient, err := newRESTClient(cfg.HTTPClient, cfg.APIBaseURL)
	if err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(cfg.Token); token != "" {
		restClient = restClient.WithAuthToken(token)
	}
	return &Client{gh: restClient}, nil
}

// AuthenticatedUser fetches the profile behind the configured credential.
func (c *Client) AuthenticatedUser(ctx context.Context) (UserProfile, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return UserProfile{}, wrapRemoteError("get authenticated user", err)
	}
	return UserProfile{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, ref RepoRef) (RepositoryInfo, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, ref.Owner, ref.Name)
	if err != nil {
		return RepositoryInfo{}, wrapRemoteError("get repository", err)
	}
	return RepositoryInfo{
		Owner:         ref.Owner,
		Name:          ref.Name,
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		Size:          repo.GetSize(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
	}, nil
}

// ListLanguages fetches the repository's language set.
func (c *Client) ListLanguages(ctx context.Context, ref RepoRef) ([]string, error) {
	byLanguage, _, err := c.gh.Repositories.ListLanguages(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, wrapRemoteError("list languages", err)
	}
	languages := make([]string, 0, len(byLanguage))
	for language := range byLanguage {
		languages = append(languages, language)
	}
	return languages, nil
}

// ListTopics fetches the repository's topic list.
func (c *Client) ListTopics(ctx context.Context, ref RepoRef) ([]string, error) {
	topics, _, err := c.gh.Repositories.ListAllTopics(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, wrapRemoteError("list topics", err)
	}
	return topics, nil
}

// ListRootEntries fetches the repository's root directory listing.
func (c *Client) ListRootEntries(ctx context.Context, ref RepoRef) ([]RootEntry, error) {
	_, directory, _, err := c.gh.Repositories.GetContents(ctx, ref.Owner, ref.Name, "", nil)
	if err != nil {
		return nil, wrapRemoteError("list root contents", err)
	}
	entries := make([]RootEntry, 0, len(directory))
	for _, entry := range directory {
		entries = append(entries, RootEntry{
			Name: entry.GetName(),
			Type: entry.GetType(),
		})
	}
	return entries, nil
}

// ListBranches fetches the repository's branch list.
func (c *Client) ListBranches(ctx context.Context, ref RepoRef) ([]Branch, error) {
	raw, _, err := c.gh.Repositories.ListBranches(ctx, ref.Owner, ref.Name, &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, wrapRemoteError("list branches", err)
	}
	branches := make([]Branch, 0, len(raw))
	for _, branch := range raw {
		branches = append(branches, Branch{Name: branch.GetName()})
	}
	return branches, nil
}

// ListCommitsPage fetches one page of commits filtered by author, branch and
// since-timestamp. Diff statistics and file lists are absent at this level;
// use GetCommitDetail for one commit's full record.
func (c *Client) ListCommitsPage(ctx context.Context, ref RepoRef, opts CommitListOptions) ([]Commit, error) {
	listOpts := &github.CommitsListOptions{
		Author: opts.Author,
		SHA:    opts.Branch,
		Since:  opts.Since,
		ListOptions: github.ListOptions{
			Page:    opts.Page,
			PerPage: opts.PerPage,
		},
	}

	raw, _, err := c.gh.Repositories.ListCommits(ctx, ref.Owner, ref.Name, listOpts)
	if err != nil {
		return nil, wrapRemoteError("list commits", err)
	}

	commits := make([]Commit, 0, len(raw))
	for _, rc := range raw {
		commits = append(commits, commitFromAPI(rc, opts.Branch))
	}
	return commits, nil
}

// GetCommitDetail fetches one commit's full record including diff statistics
// and the touched-file list.
func (c *Client) GetCommitDetail(ctx context.Context, ref RepoRef, sha string) (Commit, error) {
	raw, _, err := c.gh.Repositories.GetCommit(ctx, ref.Owner, ref.Name, sha, nil)
	if err != nil {
		return Commit{}, wrapRemoteError("get commit detail", err)
	}

	commit := commitFromAPI(raw, "")
	if stats := raw.GetStats(); stats != nil {
		commit.Stats = &CommitStats{
			Additions: stats.GetAdditions(),
			Deletions: stats.GetDeletions(),
			Total:     stats.GetTotal(),
		}
	}
	for _, file := range raw.Files {
		commit.Files = append(commit.Files, CommitFile{
			Path:   file.GetFilename(),
			Status: file.GetStatus(),
		})
	}
	return commit, nil
}

func commitFromAPI(rc *github.RepositoryCommit, branch string) Commit {
	commit := Commit{
		SHA:         rc.GetSHA(),
		AuthorLogin: rc.GetAuthor().GetLogin(),
		Branch:      branch,
	}
	if core := rc.GetCommit(); core != nil {
		commit.Message = core.GetMessage()
		if author := core.GetAuthor(); author != nil {
			commit.AuthorName = author.GetName()
			commit.AuthorEmail = author.GetEmail()
			commit.AuthoredAt = author.GetDate().Time.UTC()
		}
	}
	return commit
}
