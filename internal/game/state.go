// Package game owns the durable game state: the player identity and
// credential, the tracked projects (each pairing a repository with its own
// pet and credit ledger), the active-project selector and the pet memory
// collection. Every mutation goes through an Owner, which serializes
// writers and persists the state document after each change.
package game

import (
	"time"

	"pixelpet/internal/pet"
)

// stateVersion tags the document schema so later migrations can detect old
// documents.
const stateVersion = 2

// maxRecentCommits caps the per-project recent commit list.
const maxRecentCommits = 50

// Identity is the authenticated player.
type Identity struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// CommitRecord is one observed commit kept for display.
type CommitRecord struct {
	SHA        string    `json:"sha"`
	Message    string    `json:"message"`
	Branch     string    `json:"branch,omitempty"`
	AuthoredAt time.Time `json:"authored_at"`
	XP         int       `json:"xp"`
}

// Project is one tracked repository paired with its pet. The processed set
// is the project's credit ledger: every sha in it has been included in
// exactly one XP credit.
type Project struct {
	ID             string          `json:"id"`
	Owner          string          `json:"owner"`
	Name           string          `json:"name"`
	URL            string          `json:"url,omitempty"`
	Classification string          `json:"classification,omitempty"`
	AddedAt        time.Time       `json:"added_at"`
	LastSyncedAt   time.Time       `json:"last_synced_at,omitzero"`
	LastCommitAt   time.Time       `json:"last_commit_at,omitzero"`
	Streak         int             `json:"streak"`
	CommitCount    int             `json:"commit_count"`
	Pet            *pet.Pet        `json:"pet"`
	Processed      map[string]bool `json:"processed,omitempty"`
	RecentCommits  []CommitRecord  `json:"recent_commits,omitempty"`
}

// ProjectRef is the project descriptor captured into a pet memory.
type ProjectRef struct {
	ID             string `json:"id"`
	Owner          string `json:"owner"`
	Name           string `json:"name"`
	URL            string `json:"url,omitempty"`
	Classification string `json:"classification,omitempty"`
}

// PetMemory is an immutable snapshot of a pet, taken by explicit user
// action. Achievements are derived once at capture time.
type PetMemory struct {
	ID           string     `json:"id"`
	Pet          pet.Pet    `json:"pet"`
	Project      ProjectRef `json:"project"`
	CapturedAt   time.Time  `json:"captured_at"`
	TotalCommits int        `json:"total_commits"`
	Achievements []string   `json:"achievements,omitempty"`
}

// State is the full game state document.
type State struct {
	Version         int         `json:"version"`
	Identity        Identity    `json:"identity"`
	Token           string      `json:"token,omitempty"`
	Projects        []*Project  `json:"projects,omitempty"`
	ActiveProjectID string      `json:"active_project_id,omitempty"`
	Memories        []PetMemory `json:"memories,omitempty"`
}

func newState() *State {
	return &State{Version: stateVersion}
}

func (s *State) project(id string) *Project {
	for _, p := range s.Projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *State) activeProject() *Project {
	if s.ActiveProjectID == "" {
		return nil
	}
	return s.project(s.ActiveProjectID)
}

// clone deep-copies the state so readers never share slices or maps with
// the mutable document.
func (s *State) clone() *State {
	out := &State{
		Version:         s.Version,
		Identity:        s.Identity,
		Token:           s.Token,
		ActiveProjectID: s.ActiveProjectID,
	}
	for _, p := range s.Projects {
		projectCopy := *p
		if p.Pet != nil {
			petCopy := *p.Pet
			projectCopy.Pet = &petCopy
		}
		projectCopy.Processed = make(map[string]bool, len(p.Processed))
		for sha := range p.Processed {
			projectCopy.Processed[sha] = true
		}
		projectCopy.RecentCommits = append([]CommitRecord(nil), p.RecentCommits...)
		out.Projects = append(out.Projects, &projectCopy)
	}
	for _, memory := range s.Memories {
		memoryCopy := memory
		memoryCopy.Achievements = append([]string(nil), memory.Achievements...)
		out.Memories = append(out.Memories, memoryCopy)
	}
	return out
}
