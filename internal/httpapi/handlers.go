package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/loto-server/internal/stats"
	"go.uber.org/zap"
)

type api struct {
	stats stats.Reader
	log   *zap.Logger
}

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.stats.Leaderboard(r.Context(), limitParam(r))
	if err != nil {
		a.fail(w, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) totals(w http.ResponseWriter, r *http.Request) {
	totals, err := a.stats.Stats(r.Context())
	if err != nil {
		a.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	games, err := a.stats.RecentGames(r.Context(), limitParam(r))
	if err != nil {
		a.fail(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func (a *api) fail(w http.ResponseWriter, what string, err error) {
	a.log.Error("stats query failed", zap.String("query", what), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load " + what})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// limitParam reads ?limit=N. Anything unparsable becomes 0, which the store
// turns into its default.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
