package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/mtzanidakis/helios/internal/engine"
	"github.com/mtzanidakis/helios/internal/state"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Projects
	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects", s.createProject)
	mux.HandleFunc("GET /api/projects/{id}", s.getProject)

	// Run control
	mux.HandleFunc("POST /api/projects/{id}/pause", s.pauseProject)
	mux.HandleFunc("POST /api/projects/{id}/resume", s.resumeProject)
	mux.HandleFunc("POST /api/projects/{id}/stop", s.stopProject)

	// Run details
	mux.HandleFunc("GET /api/projects/{id}/tasks", s.listProjectTasks)
	mux.HandleFunc("GET /api/projects/{id}/artifacts", s.listProjectArtifacts)
	mux.HandleFunc("GET /api/projects/{id}/artifact-versions", s.listArtifactVersions)
	mux.HandleFunc("GET /api/projects/{id}/log", s.listProjectLog)
	mux.HandleFunc("GET /api/projects/{id}/errors", s.listProjectErrors)
	mux.HandleFunc("GET /api/projects/{id}/handoffs", s.listProjectHandoffs)
	mux.HandleFunc("GET /api/projects/{id}/files", s.listProjectFiles)
	mux.HandleFunc("GET /api/projects/{id}/export", s.exportProject)

	// Schedules
	s.registerScheduleAPI(mux)

	// Secrets
	s.registerSecretAPI(mux)

	// System
	mux.HandleFunc("GET /api/status", s.getStatus)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Description == "" {
		jsonError(w, "name and description are required", http.StatusBadRequest)
		return
	}

	run, err := s.engine.Start(r.Context(), body.Name, body.Description)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"id":     run.ID,
		"name":   body.Name,
		"status": string(run.Status()),
	})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		entry := map[string]any{
			"id":         p.ID,
			"name":       p.Name,
			"status":     p.Status,
			"created_at": p.CreatedAt,
		}
		// Live runs know more than the persisted record
		if run, ok := s.engine.Run(p.ID); ok {
			entry["status"] = string(run.Status())
			snap := run.Snapshot()
			completed, total := snap.TaskCounts()
			entry["active_role"] = string(snap.ActiveRole)
			entry["tasks_completed"] = completed
			entry["tasks_total"] = total
		}
		if p.CompletedAt != nil {
			entry["completed_at"] = p.CompletedAt
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.store.GetProject(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if p == nil {
		jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	out := map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"status":      p.Status,
		"created_at":  p.CreatedAt,
	}
	if p.FinalOutput != "" {
		out["final_output"] = p.FinalOutput
	}
	if p.CompletedAt != nil {
		out["completed_at"] = p.CompletedAt
	}
	if run, ok := s.engine.Run(id); ok {
		out["status"] = string(run.Status())
		out["state"] = stateToAPI(run.Snapshot())
	}
	jsonResponse(w, out)
}

func (s *Server) pauseProject(w http.ResponseWriter, r *http.Request) {
	run, ok := s.liveRun(w, r)
	if !ok {
		return
	}
	if err := run.Pause(); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]string{"status": "pausing"})
}

func (s *Server) resumeProject(w http.ResponseWriter, r *http.Request) {
	run, ok := s.liveRun(w, r)
	if !ok {
		return
	}
	if err := run.Resume(); err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	jsonResponse(w, map[string]string{"status": "running"})
}

func (s *Server) stopProject(w http.ResponseWriter, r *http.Request) {
	run, ok := s.liveRun(w, r)
	if !ok {
		return
	}
	run.Stop()
	jsonResponse(w, map[string]string{"status": "stopping"})
}

func (s *Server) liveRun(w http.ResponseWriter, r *http.Request) (*engine.Run, bool) {
	id := r.PathValue("id")
	run, ok := s.engine.Run(id)
	if !ok {
		jsonError(w, "no run for project", http.StatusNotFound)
		return nil, false
	}
	return run, true
}

func (s *Server) listProjectTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Prefer the live snapshot; fall back to the persisted records
	if run, ok := s.engine.Run(id); ok {
		jsonResponse(w, run.Snapshot().Tasks)
		return
	}
	tasks, err := s.store.ListProjectTasks(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []state.Task{}
	}
	jsonResponse(w, tasks)
}

func (s *Server) listProjectArtifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	artifacts, err := s.store.ListLatestArtifacts(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if artifacts == nil {
		artifacts = []state.Artifact{}
	}
	jsonResponse(w, artifacts)
}

func (s *Server) listArtifactVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key := r.URL.Query().Get("key")
	if key == "" {
		jsonError(w, "key query parameter is required", http.StatusBadRequest)
		return
	}
	versions, err := s.store.ListArtifactVersions(id, key)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if versions == nil {
		versions = []state.Artifact{}
	}
	jsonResponse(w, versions)
}

func (s *Server) listProjectLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListRunLog(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"role":        string(e.Role),
			"started_at":  e.StartedAt,
			"duration_ms": e.Duration.Milliseconds(),
			"success":     e.Success,
		}
		if e.Error != "" {
			entry["error"] = e.Error
		}
		out = append(out, entry)
	}
	jsonResponse(w, out)
}

func (s *Server) listProjectErrors(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRunErrors(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []state.ErrorRecord{}
	}
	jsonResponse(w, records)
}

func (s *Server) listProjectHandoffs(w http.ResponseWriter, r *http.Request) {
	handoffs, err := s.store.ListHandoffs(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if handoffs == nil {
		handoffs = []state.Handoff{}
	}
	jsonResponse(w, handoffs)
}

func (s *Server) listProjectFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ws.ListFiles(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []string{}
	}
	jsonResponse(w, files)
}

func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.tar.zst", id))
	if err := s.ws.Export(id, w); err != nil {
		// Headers are already out if streaming started; best effort
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	projects, _ := s.store.ListProjects()

	active := 0
	for _, run := range s.engine.Runs() {
		switch run.Status() {
		case engine.StatusRunning, engine.StatusPaused:
			active++
		}
	}

	jsonResponse(w, map[string]any{
		"status":         "ok",
		"active_runs":    active,
		"projects_count": len(projects),
		"uptime":         formatUptime(time.Since(s.startedAt)),
		"nats":           "ok",
		"timestamp":      time.Now().UTC(),
		"version":        s.version,
	})
}

// stateToAPI flattens a state snapshot for the UI: artifacts as a sorted key
// list, counts instead of full collections.
func stateToAPI(st *state.State) map[string]any {
	keys := make([]string, 0, len(st.Artifacts))
	for k := range st.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	completed, total := st.TaskCounts()
	out := map[string]any{
		"active_role":     string(st.ActiveRole),
		"tasks_completed": completed,
		"tasks_total":     total,
		"artifact_keys":   keys,
		"messages":        len(st.Messages),
		"errors":          len(st.Errors),
		"handoffs":        len(st.Handoffs),
		"completed":       st.Completed,
		"last_modified":   st.LastModified,
	}
	if st.PendingOverride != state.RoleNone {
		out["pending_override"] = string(st.PendingOverride)
	}
	if st.FinalOutput != "" {
		out["final_output"] = st.FinalOutput
	}
	return out
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
