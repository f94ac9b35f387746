// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"
)

// repoJSON is the wire shape of one repository entry. For locally served
// rows the id is the database row id; on the live-proxy path it is the
// index within the page, which is all the table UI keys on.
type repoJSON struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Language  *string `json:"language"`
	StarCount int     `json:"starCount"`
	UpdatedAt string  `json:"updatedAt"`
}

type pageJSON struct {
	TotalItems int        `json:"totalItems"`
	TotalPages int        `json:"totalPages"`
	Repos      []repoJSON `json:"repos"`
}

type statusJSON struct {
	Status string `json:"status"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
