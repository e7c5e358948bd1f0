package handlers

import (
	"net/http"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/report"
	"github.com/iago/obra-back/internal/service"
	"github.com/iago/obra-back/internal/weekkey"
)

type assignEngineerRequest struct {
	EngineerID string `json:"engineer_id"`
}

type carryForwardRequest struct {
	ExpectedWeekKey weekkey.Key `json:"expected_week_key,omitempty"`
}

type taskStatusRequest struct {
	Status domain.TaskStatus `json:"status"`
}

func (api *API) Sites(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		sites, err := api.sites.ListSites(r.Context(), actor, queryBool(r, "active"))
		if err != nil {
			writeServiceError(w, r, err, "failed to list sites")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": sites, "total": len(sites)})
	case http.MethodPost:
		var request service.CreateSiteInput
		if err := decodeJSON(w, r, &request); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
			return
		}
		site, err := api.sites.CreateSite(r.Context(), actor, request)
		if err != nil {
			writeServiceError(w, r, err, "failed to create site")
			return
		}
		writeJSON(w, http.StatusCreated, site)
	default:
		methodNotAllowed(w, r)
	}
}

// SiteRoutes dispatches /v1/sites/{id} and its sub-resources.
func (api *API) SiteRoutes(w http.ResponseWriter, r *http.Request) {
	siteID, action := splitPath(r.URL.Path, "/v1/sites/")
	if siteID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "site id is required")
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		site, err := api.sites.GetSite(r.Context(), actor, siteID)
		if err != nil {
			writeServiceError(w, r, err, "failed to load site")
			return
		}
		writeJSON(w, http.StatusOK, site)
	case "engineer":
		api.assignEngineer(w, r, actor, siteID)
	case "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		site, err := api.sites.DeactivateSite(r.Context(), actor, siteID)
		if err != nil {
			writeServiceError(w, r, err, "failed to deactivate site")
			return
		}
		writeJSON(w, http.StatusOK, site)
	case "tasks":
		api.siteTasks(w, r, actor, siteID)
	case "summary":
		api.siteSummary(w, r, actor, siteID)
	case "carry-forward":
		api.carryForward(w, r, actor, siteID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown site resource")
	}
}

func (api *API) assignEngineer(w http.ResponseWriter, r *http.Request, actor domain.Actor, siteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var request assignEngineerRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	site, err := api.sites.AssignEngineer(r.Context(), actor, siteID, request.EngineerID)
	if err != nil {
		writeServiceError(w, r, err, "failed to assign engineer")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (api *API) siteTasks(w http.ResponseWriter, r *http.Request, actor domain.Actor, siteID string) {
	switch r.Method {
	case http.MethodGet:
		week := weekkey.Key(r.URL.Query().Get("week"))
		tasks, err := api.sites.ListTasks(r.Context(), actor, siteID, week)
		if err != nil {
			writeServiceError(w, r, err, "failed to list tasks")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tasks, "total": len(tasks)})
	case http.MethodPost:
		var request service.CreateTaskInput
		if err := decodeJSON(w, r, &request); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
			return
		}
		task, err := api.sites.CreateTask(r.Context(), actor, siteID, request)
		if err != nil {
			writeServiceError(w, r, err, "failed to create task")
			return
		}
		writeJSON(w, http.StatusCreated, task)
	default:
		methodNotAllowed(w, r)
	}
}

func (api *API) siteSummary(w http.ResponseWriter, r *http.Request, actor domain.Actor, siteID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	site, tasks, err := api.sites.SiteSummary(r.Context(), actor, siteID)
	if err != nil {
		writeServiceError(w, r, err, "failed to summarize site")
		return
	}

	current := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.WeekKey == site.CurrentWeekKey {
			current = append(current, task)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"site":          site,
		"all_weeks":     report.SummarizeSite(*site, tasks),
		"current_week":  report.SummarizeSite(*site, current),
		"current_tasks": current,
	})
}

func (api *API) carryForward(w http.ResponseWriter, r *http.Request, actor domain.Actor, siteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var request carryForwardRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	result, err := api.carry.CarryForward(r.Context(), service.CarryForwardRequest{
		SiteID:          siteID,
		ExpectedWeekKey: request.ExpectedWeekKey,
		Actor:           actor,
	})
	if err != nil {
		writeServiceError(w, r, err, "failed to carry forward")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TaskStatus handles POST /v1/tasks/{id}/status.
func (api *API) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, action := splitPath(r.URL.Path, "/v1/tasks/")
	if taskID == "" || action != "status" {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown task resource")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var request taskStatusRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	task, err := api.sites.UpdateTaskStatus(r.Context(), actor, taskID, request.Status)
	if err != nil {
		writeServiceError(w, r, err, "failed to update task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}
