package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pixelpet/internal/game"
	"pixelpet/internal/githubapi"
	"pixelpet/internal/pet"
	syncpkg "pixelpet/internal/sync"
)

type apiHandlers struct {
	runtime *Runtime
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Rejected preconditions
// are conflicts unless the precondition was existence; upstream GitHub
// failures surface as bad gateway.
func writeError(w http.ResponseWriter, err error) {
	var invalid *githubapi.ErrInvalidReference
	var precondition *pet.PreconditionError
	var remote *githubapi.RemoteError

	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &precondition):
		status := http.StatusConflict
		if strings.Contains(precondition.Reason, "not found") {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
	case errors.Is(err, syncpkg.ErrSyncInFlight), errors.Is(err, syncpkg.ErrNoActiveProject):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &remote):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *apiHandlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Token) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}

	identity, err := h.runtime.Login(r.Context(), body.Token)
	if err != nil {
		var remote *githubapi.RemoteError
		if errors.As(err, &remote) && (remote.Status == http.StatusUnauthorized || remote.Status == http.StatusForbidden) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (h *apiHandlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runtime.owner.Snapshot())
}

// activePet resolves the active project's pet from a fresh snapshot.
func (h *apiHandlers) activePet() (*pet.Pet, bool) {
	state := h.runtime.owner.Snapshot()
	for _, project := range state.Projects {
		if project.ID == state.ActiveProjectID {
			return project.Pet, project.Pet != nil
		}
	}
	return nil, false
}

func (h *apiHandlers) getPet(w http.ResponseWriter, r *http.Request) {
	petState, ok := h.activePet()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no active project"})
		return
	}
	writeJSON(w, http.StatusOK, petState)
}

func (h *apiHandlers) adjustPet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID      string `json:"project_id"`
		HealthDelta    int    `json:"health_delta"`
		HappinessDelta int    `json:"happiness_delta"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if body.HealthDelta != 0 {
		if err := h.runtime.owner.AdjustPetHealth(r.Context(), body.ProjectID, body.HealthDelta); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.HappinessDelta != 0 {
		if err := h.runtime.owner.AdjustPetHappiness(r.Context(), body.ProjectID, body.HappinessDelta); err != nil {
			writeError(w, err)
			return
		}
	}
	state := h.runtime.owner.Snapshot()
	projectID := body.ProjectID
	if projectID == "" {
		projectID = state.ActiveProjectID
	}
	for _, project := range state.Projects {
		if project.ID == projectID {
			writeJSON(w, http.StatusOK, project.Pet)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "project not found"})
}

func (h *apiHandlers) listProjects(w http.ResponseWriter, r *http.Request) {
	state := h.runtime.owner.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"projects":          state.Projects,
		"active_project_id": state.ActiveProjectID,
	})
}

func (h *apiHandlers) addProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL     string `json:"url"`
		Species string `json:"species"`
		PetName string `json:"pet_name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	ref, err := githubapi.ParseRepoRef(body.URL)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := h.runtime.owner.AddProject(r.Context(), game.ProjectParams{
		Owner:   ref.Owner,
		Name:    ref.Name,
		URL:     body.URL,
		Species: body.Species,
		PetName: body.PetName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *apiHandlers) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	archive := strings.EqualFold(r.URL.Query().Get("archive"), "true")

	if err := h.runtime.owner.DeleteProject(r.Context(), id, archive); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) activateProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runtime.owner.SetActiveProject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) syncProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.runtime.orchestrator.SyncProject(r.Context(), id)
	h.finishSync(w, summary, err)
}

func (h *apiHandlers) syncActive(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runtime.orchestrator.SyncActive(r.Context())
	h.finishSync(w, summary, err)
}

func (h *apiHandlers) finishSync(w http.ResponseWriter, summary syncpkg.Summary, err error) {
	if err != nil {
		if !errors.Is(err, syncpkg.ErrSyncInFlight) && !errors.Is(err, syncpkg.ErrNoActiveProject) {
			h.runtime.recordSummary(summary, err)
		}
		writeError(w, err)
		return
	}
	h.runtime.recordSummary(summary, nil)
	writeJSON(w, http.StatusOK, summary)
}

func (h *apiHandlers) simulateCommit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Size string `json:"size"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	award, err := h.runtime.owner.SimulateCommit(r.Context(), body.Size)
	if err != nil {
		var precondition *pet.PreconditionError
		if !errors.As(err, &precondition) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	h.runtime.logger.Debug("simulated commit", zap.String("size", body.Size), zap.Int("xp", award))
	petState, _ := h.activePet()
	writeJSON(w, http.StatusOK, map[string]any{
		"xp_awarded": award,
		"pet":        petState,
	})
}

func (h *apiHandlers) listMemories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": h.runtime.owner.Snapshot().Memories,
	})
}

func (h *apiHandlers) saveMemory(w http.ResponseWriter, r *http.Request) {
	// The body is optional; an empty POST captures the active project's pet.
	var body struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	memory, err := h.runtime.owner.SavePetMemory(r.Context(), body.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memory)
}

func (h *apiHandlers) deleteMemory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runtime.owner.DeleteMemory(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandlers) clearMemories(w http.ResponseWriter, r *http.Request) {
	h.runtime.owner.ClearMemories(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
