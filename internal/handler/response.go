package handler

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error         string `json:"error"`
	CurrentStatus string `json:"currentStatus,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
