package middleware

import (
	"net/http"
	"strings"
)

// ValidateQuery rejects requests whose query values carry path traversal
// sequences. Account and token parameters are hex strings, so nothing
// legitimate is refused.
func ValidateQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, values := range r.URL.Query() {
			for _, value := range values {
				if strings.Contains(value, "../") || strings.Contains(value, "..\\") {
					writeError(w, http.StatusBadRequest, "invalid_input", "path traversal detected")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
