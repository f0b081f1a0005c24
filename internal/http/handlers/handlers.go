// Package handlers holds the chi HTTP handlers. Handlers decode,
// delegate to a service, and encode; every rule lives in the service
// layer.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/porteria/visitor-access/internal/http/response"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads limit/offset with the same defaults and caps as the
// repositories.
func pagination(r *http.Request) (limit, offset int, ok bool) {
	limit, offset = 20, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func badJSON(w http.ResponseWriter) {
	response.BadRequest(w, "invalid json")
}
