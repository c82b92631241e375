package handlers

import (
	"database/sql"
	"net/http"
)

// Healthchecker probes the database with SELECT 1 and reports overall
// application health.
func Healthchecker(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var one int
		if err := db.QueryRowContext(r.Context(), "SELECT 1").Scan(&one); err != nil || one != 1 {
			writeError(w, http.StatusInternalServerError, msgDatabaseDown)
			return
		}
		writeMessage(w, http.StatusOK, msgHealthy)
	}
}

// Welcome greets callers of the service root.
func Welcome(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, msgWelcome)
}
