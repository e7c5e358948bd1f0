package handlers

import (
	"net/http"
	"strings"

	"github.com/iago/obra-back/internal/report"
	"github.com/iago/obra-back/internal/service"
)

func reportQuery(r *http.Request) service.ReportQuery {
	query := r.URL.Query()
	pageSize := queryInt(r, "page_size")
	if pageSize > 100 {
		pageSize = 100
	}
	return service.ReportQuery{
		Range:    report.ParseRangeMode(query.Get("range")),
		Query:    strings.TrimSpace(query.Get("q")),
		Sort:     report.ParseSortMode(query.Get("sort")),
		Page:     queryInt(r, "page"),
		PageSize: pageSize,
	}
}

// Reports serves GET /v1/reports/{sites,overdue,engineers}.
func (api *API) Reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	view, _ := splitPath(r.URL.Path, "/v1/reports/")
	query := reportQuery(r)

	var (
		page any
		err  error
	)
	switch view {
	case "sites":
		page, err = api.reports.SiteReport(r.Context(), actor, query)
	case "overdue":
		page, err = api.reports.OverdueReport(r.Context(), actor, query)
	case "engineers":
		page, err = api.reports.EngineerReport(r.Context(), actor, query)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "report must be sites, overdue or engineers")
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
