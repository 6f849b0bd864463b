package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ProblemContentType is the media type of RFC7807 responses.
const ProblemContentType = "application/problem+json"

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, "application/json", status, data)
}

// Problem sends an RFC7807 problem details response. The type is derived
// from the title, e.g. "Validation Failed" becomes "validation-failed".
func Problem(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, ProblemContentType, status, ProblemDetail{
		Type:   problemType(title),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func problemType(title string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(title), "-"))
	if slug == "" {
		return "about:blank"
	}
	return slug
}
