package handlers

import (
	"net/http"
)

// HandleGetPosts lists every post, newest first. No authentication needed.
func (h *HTTPHandler) HandleGetPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Storage.ListPosts(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
