package handlers

import (
	"net/http"

	"github.com/iago/obra-back/internal/weekkey"
)

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// CurrentWeek reports the key for today in the site timezone and the key a
// carry-forward would move to from it.
func (api *API) CurrentWeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := actorFrom(w, r); !ok {
		return
	}

	now := api.now()
	current := weekkey.Of(now)
	from, to := weekkey.CalendarRange(now)
	writeJSON(w, http.StatusOK, map[string]any{
		"week_key":      current,
		"next_week_key": weekkey.Next(string(current), now, api.wrapMode),
		"wrap_mode":     api.wrapMode,
		"range":         map[string]string{"from": from, "to": to},
	})
}
