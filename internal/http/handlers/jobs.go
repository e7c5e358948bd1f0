package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/iago/obra-back/internal/domain"
)

type rolloverRequest struct {
	SiteIDs []string `json:"site_ids,omitempty"`
}

// Rollovers queues one carry-forward job per site and answers 202 with
// the status URLs to poll.
func (api *API) Rollovers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var request rolloverRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	jobs, err := api.rollovers.RequestRollover(r.Context(), actor, request.SiteIDs)
	if err != nil {
		writeServiceError(w, r, err, "failed to enqueue rollover")
		return
	}

	items := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, map[string]any{
			"job_id":            job.ID,
			"site_id":           job.SiteID,
			"expected_week_key": job.ExpectedWeekKey,
			"status":            job.Status,
			"status_url":        "/v1/jobs/" + job.ID,
			"accepted_at":       job.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": items, "total": len(items)})
}

func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	job, err := api.rollovers.GetJob(r.Context(), actor, jobID)
	if err != nil {
		writeServiceError(w, r, err, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

func jobResponse(job *domain.Job) map[string]any {
	response := map[string]any{
		"job_id":            job.ID,
		"kind":              job.Kind,
		"site_id":           job.SiteID,
		"expected_week_key": job.ExpectedWeekKey,
		"status":            job.Status,
		"attempts":          job.Attempts,
		"updated_at":        job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		response["result"] = jsonRawOrFallback(job.Result)
	}
	if strings.TrimSpace(job.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorMessage,
		}
	}
	return response
}

func jsonRawOrFallback(value []byte) any {
	var decoded any
	if err := json.Unmarshal(value, &decoded); err == nil {
		return decoded
	}
	return string(value)
}
