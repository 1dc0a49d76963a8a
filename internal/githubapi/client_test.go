package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		Token:      "test-token",
		APIBaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestParseRepoRef(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		raw     string
		want    RepoRef
		wantErr bool
	}{
		{name: "https url", raw: "https://github.com/octocat/hello-world", want: RepoRef{Owner: "octocat", Name: "hello-world"}},
		{name: "url with git suffix", raw: "https://github.com/octocat/hello-world.git", want: RepoRef{Owner: "octocat", Name: "hello-world"}},
		{name: "url with trailing slash", raw: "https://github.com/octocat/hello-world/", want: RepoRef{Owner: "octocat", Name: "hello-world"}},
		{name: "bare owner name", raw: "octocat/hello-world", want: RepoRef{Owner: "octocat", Name: "hello-world"}},
		{name: "padded", raw: "  octocat/hello-world \n", want: RepoRef{Owner: "octocat", Name: "hello-world"}},
		{name: "empty", raw: "", wantErr: true},
		{name: "no separator", raw: "hello-world", wantErr: true},
		{name: "wrong host", raw: "https://gitlab.com/octocat/hello-world", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRepoRef(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseRepoRef(%q) expected error, got %+v", tc.raw, got)
				}
				var invalid *ErrInvalidReference
				if !errors.As(err, &invalid) {
					t.Fatalf("ParseRepoRef(%q) error = %v, want ErrInvalidReference", tc.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepoRef(%q): %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("ParseRepoRef(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestAuthenticatedUser(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"login":"octocat","name":"Octo Cat","avatar_url":"https://example.test/a.png"}`)
	})

	client := newTestClient(t, mux)

	profile, err := client.AuthenticatedUser(context.Background())
	if err != nil {
		t.Fatalf("AuthenticatedUser: %v", err)
	}
	want := UserProfile{Login: "octocat", Name: "Octo Cat", AvatarURL: "https://example.test/a.png"}
	if profile != want {
		t.Fatalf("AuthenticatedUser = %+v, want %+v", profile, want)
	}
}

func TestGetRepositoryNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	client := newTestClient(t, mux)

	_, err := client.GetRepository(context.Background(), RepoRef{Owner: "octocat", Name: "missing"})
	if err == nil {
		t.Fatal("GetRepository expected error")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want RemoteError", err)
	}
	if !remote.NotFound() {
		t.Fatalf("RemoteError status = %d, want 404", remote.Status)
	}
}

func TestListCommitsPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/commits", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("author"); got != "octocat" {
			t.Errorf("author query = %q", got)
		}
		if got := query.Get("sha"); got != "main" {
			t.Errorf("sha query = %q", got)
		}
		if got := query.Get("per_page"); got != "50" {
			t.Errorf("per_page query = %q", got)
		}
		if got := query.Get("page"); got != "2" {
			t.Errorf("page query = %q", got)
		}
		if query.Get("since") == "" {
			t.Error("since query missing")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"sha":"abc123","author":{"login":"octocat"},"commit":{"message":"fix: handle nil","author":{"name":"Octo Cat","email":"octo@example.test","date":"2026-08-20T10:30:00Z"}}},
			{"sha":"def456","commit":{"message":"add tests","author":{"name":"Octo Cat","email":"octo@example.test","date":"2026-08-19T09:00:00Z"}}}
		]`)
	})

	client := newTestClient(t, mux)

	commits, err := client.ListCommitsPage(context.Background(), RepoRef{Owner: "octocat", Name: "hello-world"}, CommitListOptions{
		Author:  "octocat",
		Branch:  "main",
		Since:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Page:    2,
		PerPage: 50,
	})
	if err != nil {
		t.Fatalf("ListCommitsPage: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("got %d commits, want 2", len(commits))
	}

	first := commits[0]
	if first.SHA != "abc123" || first.AuthorLogin != "octocat" || first.Message != "fix: handle nil" {
		t.Fatalf("unexpected first commit: %+v", first)
	}
	if first.Branch != "main" {
		t.Fatalf("branch = %q, want main", first.Branch)
	}
	if first.Stats != nil || first.Files != nil {
		t.Fatal("listing commits should not carry stats or files")
	}
	if want := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC); !first.AuthoredAt.Equal(want) {
		t.Fatalf("AuthoredAt = %v, want %v", first.AuthoredAt, want)
	}
	if commits[1].AuthorLogin != "" {
		t.Fatalf("second commit login = %q, want empty", commits[1].AuthorLogin)
	}
}

func TestGetCommitDetail(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/commits/abc123", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"sha":"abc123",
			"author":{"login":"octocat"},
			"commit":{"message":"initial commit","author":{"name":"Octo Cat","email":"octo@example.test","date":"2026-08-20T10:30:00Z"}},
			"stats":{"additions":40,"deletions":8,"total":48},
			"files":[
				{"filename":"README.md","status":"added"},
				{"filename":"main.go","status":"modified"}
			]
		}`)
	})

	client := newTestClient(t, mux)

	commit, err := client.GetCommitDetail(context.Background(), RepoRef{Owner: "octocat", Name: "hello-world"}, "abc123")
	if err != nil {
		t.Fatalf("GetCommitDetail: %v", err)
	}
	if commit.Stats == nil {
		t.Fatal("expected stats")
	}
	if commit.Stats.Additions != 40 || commit.Stats.Deletions != 8 || commit.Stats.Total != 48 {
		t.Fatalf("unexpected stats: %+v", commit.Stats)
	}
	if len(commit.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(commit.Files))
	}
	if commit.Files[0].Path != "README.md" || commit.Files[0].Status != "added" {
		t.Fatalf("unexpected first file: %+v", commit.Files[0])
	}
}

func TestListRootEntries(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/contents/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"name":"README.md","type":"file"},
			{"name":"src","type":"dir"}
		]`)
	})

	client := newTestClient(t, mux)

	entries, err := client.ListRootEntries(context.Background(), RepoRef{Owner: "octocat", Name: "hello-world"})
	if err != nil {
		t.Fatalf("ListRootEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "README.md" || entries[0].Type != "file" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
}

func TestListBranches(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello-world/branches", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"main"},{"name":"develop"}]`)
	})

	client := newTestClient(t, mux)

	branches, err := client.ListBranches(context.Background(), RepoRef{Owner: "octocat", Name: "hello-world"})
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	if len(branches) != 2 || branches[0].Name != "main" || branches[1].Name != "develop" {
		t.Fatalf("unexpected branches: %+v", branches)
	}
}
