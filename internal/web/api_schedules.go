package web

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mtzanidakis/helios/internal/scheduler"
	"github.com/mtzanidakis/helios/internal/store"
)

func (s *Server) registerScheduleAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schedules", s.listSchedules)
	mux.HandleFunc("POST /api/schedules", s.createSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", s.getSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.updateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.deleteSchedule)
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if schedules == nil {
		schedules = []store.Schedule{}
	}
	jsonResponse(w, schedules)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Cron        string `json:"cron"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Name == "" || body.Description == "" || body.Cron == "" {
		jsonError(w, "name, description, and cron are required", http.StatusBadRequest)
		return
	}
	if err := scheduler.ValidateCron(body.Cron); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	nextRun, err := scheduler.NextRun(body.Cron)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc := &store.Schedule{
		ID:          uuid.NewString(),
		Name:        body.Name,
		Description: body.Description,
		Cron:        body.Cron,
		Status:      "active",
		NextRunAt:   nextRun,
	}
	if err := s.store.SaveSchedule(sc); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, sc)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetSchedule(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sc == nil {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, sc)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetSchedule(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		jsonError(w, "schedule not found", http.StatusNotFound)
		return
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Cron        *string `json:"cron"`
		Status      *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.Description != nil {
		existing.Description = *body.Description
	}
	if body.Cron != nil {
		if err := scheduler.ValidateCron(*body.Cron); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		existing.Cron = *body.Cron
		next, err := scheduler.NextRun(*body.Cron)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		existing.NextRunAt = next
	}
	if body.Status != nil {
		if *body.Status != "active" && *body.Status != "disabled" {
			jsonError(w, "status must be 'active' or 'disabled'", http.StatusBadRequest)
			return
		}
		existing.Status = *body.Status
	}

	if err := s.store.SaveSchedule(existing); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, existing)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSchedule(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "deleted"})
}
