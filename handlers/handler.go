package handlers

import (
	"blogapp/storage"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const (
	SERVER_ERROR_MESSAGE = "Server error"
	NOT_FOUND_MESSAGE    = "Post not found"
	INVALID_BODY_MESSAGE = "Invalid request body"
	POST_CREATED_MESSAGE = "Post created successfully"
	POST_UPDATED_MESSAGE = "Post updated successfully"
	POST_DELETED_MESSAGE = "Post deleted successfully"
	API_RUNNING_MESSAGE  = "Blog API is running!"
)

type HTTPHandler struct {
	Storage storage.Storage
}

type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	rawResponse, err := json.Marshal(body)
	if err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
		rawResponse, _ = json.Marshal(MessageResponse{SERVER_ERROR_MESSAGE, err.Error()})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(rawResponse)
}

// writeStorageError answers with 404 for a missing (or not owned) post and
// with 500 carrying the underlying message for everything else.
func writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.NotFoundError) {
		slog.Info("post not found", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, MessageResponse{Message: NOT_FOUND_MESSAGE})
		return
	}
	slog.Error("storage error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, MessageResponse{SERVER_ERROR_MESSAGE, err.Error()})
}

func writeInvalidBody(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, MessageResponse{INVALID_BODY_MESSAGE, err.Error()})
}
