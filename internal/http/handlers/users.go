package handlers

import (
	"net/http"

	"github.com/iago/obra-back/internal/service"
)

type renameUserRequest struct {
	Name string `json:"name"`
}

func (api *API) Users(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		users, err := api.sites.ListUsers(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, err, "failed to list users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": users, "total": len(users)})
	case http.MethodPost:
		var request service.CreateUserInput
		if err := decodeJSON(w, r, &request); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
			return
		}
		user, err := api.sites.CreateUser(r.Context(), actor, request)
		if err != nil {
			writeServiceError(w, r, err, "failed to create user")
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r)
	}
}

// UserRoutes handles POST /v1/users/{id}/rename.
func (api *API) UserRoutes(w http.ResponseWriter, r *http.Request) {
	userID, action := splitPath(r.URL.Path, "/v1/users/")
	if userID == "" || action != "rename" {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown user resource")
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

	var request renameUserRequest
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	result, err := api.sites.RenameUser(r.Context(), actor, userID, request.Name)
	if err != nil {
		writeServiceError(w, r, err, "failed to rename user")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
