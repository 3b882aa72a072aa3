package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// APIError is the JSON body of requests failing outside the huma operations.
type APIError struct {
	Status  int     `json:"status"`
	Title   string  `json:"title"`
	Details *string `json:"details,omitempty"`
}

func NewAPIError(status int, title string, details *string) *APIError {
	return &APIError{Status: status, Title: title, Details: details}
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, *e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// HandleError writes the error as a problem JSON response.
func HandleError(w http.ResponseWriter, apiError *APIError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(apiError.Status)

	if err := json.NewEncoder(w).Encode(apiError); err != nil {
		log.Errorf("Failed to encode error response: %v", err)
	}
}
