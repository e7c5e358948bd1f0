package handlers

import (
	"net/http"
	"strings"

	"github.com/iago/obra-back/internal/weekkey"
)

func (api *API) Snapshots(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		snapshots, err := api.snapshots.List(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err, "failed to list snapshots")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": snapshots, "total": len(snapshots)})
	case http.MethodPost:
		snapshot, err := api.snapshots.Save(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err, "failed to save snapshot")
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	default:
		methodNotAllowed(w, r)
	}
}

// SnapshotByWeek handles GET /v1/snapshots/{weekKey}.
func (api *API) SnapshotByWeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	key := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/snapshots/"))
	snapshot, err := api.snapshots.Get(r.Context(), actor, weekkey.Key(key))
	if err != nil {
		writeServiceError(w, r, err, "failed to load snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
