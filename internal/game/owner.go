package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pixelpet/internal/pet"
	"pixelpet/internal/statestore"
)

// Owner serializes all game state mutations. Each mutation applies in
// memory first and then persists the document; a failed save is logged and
// the in-memory state stays authoritative until the next successful save.
type Owner struct {
	mu     sync.Mutex
	store  statestore.Store
	logger *zap.Logger
	state  *State

	// Now and NewID are injectable for tests.
	Now     func() time.Time
	NewID   func() string
	RandInt func(n int) int
}

// NewOwner creates an Owner backed by store, loading any existing state
// document.
func NewOwner(ctx context.Context, store statestore.Store, logger *zap.Logger) (*Owner, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	owner := &Owner{
		store:   store,
		logger:  logger,
		Now:     time.Now,
		NewID:   uuid.NewString,
		RandInt: rand.Intn,
	}

	doc, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load game state: %w", err)
	}
	if !found {
		owner.state = newState()
		return owner, nil
	}

	state := newState()
	if err := json.Unmarshal(doc, state); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	for _, project := range state.Projects {
		if project.Processed == nil {
			project.Processed = map[string]bool{}
		}
	}
	owner.state = state
	return owner, nil
}

// persist must be called with the mutex held.
func (o *Owner) persist(ctx context.Context) {
	doc, err := json.Marshal(o.state)
	if err != nil {
		o.logger.Error("encode game state", zap.Error(err))
		return
	}
	if err := o.store.Save(ctx, doc); err != nil {
		o.logger.Warn("save game state", zap.Error(err))
	}
}

// Snapshot returns a deep copy of the current state.
func (o *Owner) Snapshot() *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// SetIdentity records the authenticated player.
func (o *Owner) SetIdentity(ctx context.Context, identity Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Identity = identity
	o.persist(ctx)
}

// SetCredentials records the authenticated player together with the token
// that authenticated them, so a restart can reuse it.
func (o *Owner) SetCredentials(ctx context.Context, identity Identity, token string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Identity = identity
	o.state.Token = token
	o.persist(ctx)
}

// Token returns the stored credential, if any.
func (o *Owner) Token() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Token
}

// ProjectParams describes a repository to start tracking and the pet that
// will live with it. Species and PetName are optional; pet defaults apply.
type ProjectParams struct {
	Owner   string
	Name    string
	URL     string
	Species string
	PetName string
}

// AddProject starts tracking a repository and hatches its pet. Tracking the
// same owner/name pair twice is rejected. The new project becomes active.
func (o *Owner) AddProject(ctx context.Context, params ProjectParams) (*Project, error) {
	repoOwner := strings.TrimSpace(params.Owner)
	repoName := strings.TrimSpace(params.Name)
	if repoOwner == "" || repoName == "" {
		return nil, fmt.Errorf("project owner and name are required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, existing := range o.state.Projects {
		if strings.EqualFold(existing.Owner, repoOwner) && strings.EqualFold(existing.Name, repoName) {
			return nil, &pet.PreconditionError{
				Op:     "add project",
				Reason: fmt.Sprintf("%s/%s is already tracked", repoOwner, repoName),
			}
		}
	}

	project := &Project{
		ID:        o.NewID(),
		Owner:     repoOwner,
		Name:      repoName,
		URL:       params.URL,
		AddedAt:   o.Now(),
		Pet:       pet.New(params.Species, strings.TrimSpace(params.PetName), o.Now()),
		Processed: map[string]bool{},
	}
	o.state.Projects = append(o.state.Projects, project)
	o.state.ActiveProjectID = project.ID
	o.persist(ctx)

	projectCopy := *project
	return &projectCopy, nil
}

// DeleteProject stops tracking a project, destroying its pet. With archive
// set the pet is captured as a memory first.
func (o *Owner) DeleteProject(ctx context.Context, id string, archive bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	project := o.state.project(id)
	if project == nil {
		return &pet.PreconditionError{Op: "delete project", Reason: "project not found"}
	}

	if archive && project.Pet != nil {
		o.captureMemory(project)
	}
	kept := o.state.Projects[:0]
	for _, p := range o.state.Projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	o.state.Projects = kept
	if o.state.ActiveProjectID == id {
		o.state.ActiveProjectID = ""
		if len(o.state.Projects) > 0 {
			o.state.ActiveProjectID = o.state.Projects[0].ID
		}
	}
	o.persist(ctx)
	return nil
}

// SetActiveProject marks a tracked project as the one periodic syncs run
// against.
func (o *Owner) SetActiveProject(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.project(id) == nil {
		return &pet.PreconditionError{Op: "set active project", Reason: "project not found"}
	}
	o.state.ActiveProjectID = id
	o.persist(ctx)
	return nil
}

// SavePetMemory captures a snapshot of a project's pet into the memory
// collection. The pet keeps living; the snapshot never changes afterwards.
// An empty projectID targets the active project.
func (o *Owner) SavePetMemory(ctx context.Context, projectID string) (*PetMemory, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if projectID == "" {
		projectID = o.state.ActiveProjectID
	}
	project := o.state.project(projectID)
	if project == nil {
		return nil, &pet.PreconditionError{Op: "save memory", Reason: "project not found"}
	}
	if project.Pet == nil {
		return nil, &pet.PreconditionError{Op: "save memory", Reason: "project has no pet"}
	}

	memory := o.captureMemory(project)
	o.persist(ctx)
	memoryCopy := memory
	memoryCopy.Achievements = append([]string(nil), memory.Achievements...)
	return &memoryCopy, nil
}

// captureMemory must be called with the mutex held and a non-nil pet.
func (o *Owner) captureMemory(project *Project) PetMemory {
	memory := PetMemory{
		ID:  o.NewID(),
		Pet: *project.Pet,
		Project: ProjectRef{
			ID:             project.ID,
			Owner:          project.Owner,
			Name:           project.Name,
			URL:            project.URL,
			Classification: project.Classification,
		},
		CapturedAt:   o.Now(),
		TotalCommits: project.CommitCount,
		Achievements: achievementsFor(project.Pet),
	}
	o.state.Memories = append(o.state.Memories, memory)
	return memory
}

// SyncObservation carries the per-project facts a sync run discovered.
type SyncObservation struct {
	Streak         int
	LastCommitAt   time.Time
	CommitCount    int
	Classification string
	RecentCommits  []CommitRecord
}

// RecordSyncObservation updates a project and its pet's streak from a sync
// run. It records facts only; crediting experience is a separate step.
func (o *Owner) RecordSyncObservation(ctx context.Context, projectID string, obs SyncObservation) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	project := o.state.project(projectID)
	if project == nil {
		return &pet.PreconditionError{Op: "record sync", Reason: "project not found"}
	}

	project.LastSyncedAt = o.Now()
	project.Streak = obs.Streak
	project.CommitCount = obs.CommitCount
	if obs.Classification != "" {
		project.Classification = obs.Classification
	}
	if !obs.LastCommitAt.IsZero() {
		project.LastCommitAt = obs.LastCommitAt
	}
	if len(obs.RecentCommits) > 0 {
		// Existing records win on sha collisions so credited XP survives
		// repeated syncs over the same window.
		seen := make(map[string]bool, len(project.RecentCommits))
		merged := append([]CommitRecord(nil), project.RecentCommits...)
		for _, record := range project.RecentCommits {
			seen[record.SHA] = true
		}
		for _, record := range obs.RecentCommits {
			if !seen[record.SHA] {
				seen[record.SHA] = true
				merged = append(merged, record)
			}
		}
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].AuthoredAt.After(merged[j].AuthoredAt)
		})
		if len(merged) > maxRecentCommits {
			merged = merged[:maxRecentCommits]
		}
		project.RecentCommits = merged
	}

	if project.Pet != nil {
		project.Pet.Streak = obs.Streak
		if !obs.LastCommitAt.IsZero() {
			project.Pet.LastCommitAt = obs.LastCommitAt
		}
	}

	o.persist(ctx)
	return nil
}

// FilterUnprocessed returns the subset of shas not yet in the project's
// credit ledger, preserving input order.
func (o *Owner) FilterUnprocessed(projectID string, shas []string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	project := o.state.project(projectID)
	if project == nil {
		return nil, &pet.PreconditionError{Op: "filter commits", Reason: "project not found"}
	}
	fresh := make([]string, 0, len(shas))
	for _, sha := range shas {
		if !project.Processed[sha] {
			fresh = append(fresh, sha)
		}
	}
	return fresh, nil
}

// CreditCommits awards experience to a project's pet for a batch of commits
// and marks their shas processed, as one atomic step. If any sha was already
// credited the whole batch is rejected and nothing changes.
func (o *Owner) CreditCommits(ctx context.Context, projectID string, shas []string, totalXP int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	project := o.state.project(projectID)
	if project == nil {
		return &pet.PreconditionError{Op: "credit commits", Reason: "project not found"}
	}
	if project.Pet == nil {
		return &pet.PreconditionError{Op: "credit commits", Reason: "project has no pet"}
	}
	for _, sha := range shas {
		if project.Processed[sha] {
			return &pet.PreconditionError{
				Op:     "credit commits",
				Reason: fmt.Sprintf("commit %s was already credited", sha),
			}
		}
	}
	if err := project.Pet.Credit(totalXP); err != nil {
		return err
	}
	for _, sha := range shas {
		project.Processed[sha] = true
	}
	project.Pet.Boost()
	o.persist(ctx)
	return nil
}

// ApplyDecay runs one inactivity decay pass over every project's pet.
func (o *Owner) ApplyDecay(ctx context.Context, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	changed := false
	for _, project := range o.state.Projects {
		if project.Pet == nil {
			continue
		}
		before := *project.Pet
		project.Pet.Decay(now)
		if before.Health == project.Pet.Health && before.Happiness == project.Pet.Happiness {
			continue
		}
		changed = true
		o.logger.Debug("pet decayed",
			zap.String("project", project.ID),
			zap.Int("health", project.Pet.Health),
			zap.Int("happiness", project.Pet.Happiness),
		)
	}
	if !changed {
		return
	}
	o.persist(ctx)
}

// AdjustPetHealth shifts a project pet's health by delta. An empty
// projectID targets the active project.
func (o *Owner) AdjustPetHealth(ctx context.Context, projectID string, delta int) error {
	return o.adjustPet(ctx, projectID, "adjust health", func(p *pet.Pet) { p.AdjustHealth(delta) })
}

// AdjustPetHappiness shifts a project pet's happiness by delta. An empty
// projectID targets the active project.
func (o *Owner) AdjustPetHappiness(ctx context.Context, projectID string, delta int) error {
	return o.adjustPet(ctx, projectID, "adjust happiness", func(p *pet.Pet) { p.AdjustHappiness(delta) })
}

func (o *Owner) adjustPet(ctx context.Context, projectID, op string, apply func(*pet.Pet)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if projectID == "" {
		projectID = o.state.ActiveProjectID
	}
	project := o.state.project(projectID)
	if project == nil {
		return &pet.PreconditionError{Op: op, Reason: "project not found"}
	}
	if project.Pet == nil {
		return &pet.PreconditionError{Op: op, Reason: "project has no pet"}
	}
	apply(project.Pet)
	o.persist(ctx)
	return nil
}

// simulated commit XP ranges by size.
var simulatedXPRange = map[string][2]int{
	"small":  {5, 15},
	"medium": {25, 35},
	"large":  {75, 90},
	"huge":   {150, 180},
}

// SimulateCommit credits the active project's pet as if a commit of the
// given size had just been pushed. Intended for demos and local testing.
func (o *Owner) SimulateCommit(ctx context.Context, size string) (int, error) {
	bounds, ok := simulatedXPRange[size]
	if !ok {
		return 0, fmt.Errorf("unknown commit size %q", size)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	project := o.state.activeProject()
	if project == nil {
		return 0, &pet.PreconditionError{Op: "simulate commit", Reason: "no active project"}
	}
	if project.Pet == nil {
		return 0, &pet.PreconditionError{Op: "simulate commit", Reason: "project has no pet"}
	}

	award := bounds[0] + o.RandInt(bounds[1]-bounds[0]+1)
	if err := project.Pet.Credit(award); err != nil {
		return 0, err
	}
	now := o.Now()
	project.Pet.Boost()
	project.Pet.Streak++
	project.Pet.LastCommitAt = now
	project.Streak = project.Pet.Streak
	project.LastCommitAt = now
	o.persist(ctx)
	return award, nil
}

// DeleteMemory removes one memory by id.
func (o *Owner) DeleteMemory(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, memory := range o.state.Memories {
		if memory.ID == id {
			o.state.Memories = append(o.state.Memories[:i], o.state.Memories[i+1:]...)
			o.persist(ctx)
			return nil
		}
	}
	return &pet.PreconditionError{Op: "delete memory", Reason: "memory not found"}
}

// ClearMemories removes the whole memory collection.
func (o *Owner) ClearMemories(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state.Memories = nil
	o.persist(ctx)
}
