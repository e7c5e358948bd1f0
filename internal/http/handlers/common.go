package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/iago/obra-back/internal/domain"
	"github.com/iago/obra-back/internal/http/middleware"
	"github.com/iago/obra-back/internal/repository"
	"github.com/iago/obra-back/internal/service"
	"github.com/iago/obra-back/internal/weekkey"
)

var errInvalidPayload = errors.New("invalid payload")

const maxBodyBytes = 1 << 20

// Dependencies are the services the HTTP layer dispatches to.
type Dependencies struct {
	Sites        *service.SitesService
	CarryForward *service.CarryForwardService
	Reports      *service.ReportsService
	Snapshots    *service.SnapshotsService
	Rollovers    *service.RolloversService
	WrapMode     weekkey.WrapMode
	Clock        service.Clock
}

type API struct {
	sites     *service.SitesService
	carry     *service.CarryForwardService
	reports   *service.ReportsService
	snapshots *service.SnapshotsService
	rollovers *service.RolloversService
	wrapMode  weekkey.WrapMode
	now       service.Clock
}

func NewAPI(deps Dependencies) *API {
	clock := deps.Clock
	if clock == nil {
		clock = service.SystemClock(nil)
	}
	return &API{
		sites:     deps.Sites,
		carry:     deps.CarryForward,
		reports:   deps.Reports,
		snapshots: deps.Snapshots,
		rollovers: deps.Rollovers,
		wrapMode:  deps.WrapMode,
		now:       clock,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// writeServiceError maps service and repository sentinels onto the error
// envelope. Unrecognised errors become a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, r, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "role not allowed for this operation")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", fallback)
	}
}

// decodeJSON rejects unknown fields. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

// actorFrom returns the authenticated caller or writes a 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
		return domain.Actor{}, false
	}
	return actor, true
}

// splitPath splits the path after prefix into an id and an optional action:
// "/v1/sites/abc/tasks" with prefix "/v1/sites/" yields ("abc", "tasks").
func splitPath(path, prefix string) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return strings.TrimSpace(id), strings.TrimSpace(action)
}

func queryInt(r *http.Request, name string) int {
	value, _ := strconv.Atoi(r.URL.Query().Get(name))
	return value
}

func queryBool(r *http.Request, name string) bool {
	value, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return value
}
