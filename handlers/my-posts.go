package handlers

import (
	"blogapp/auth"
	"net/http"
)

func (h *HTTPHandler) HandleMyPosts(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	posts, err := h.Storage.ListPostsByAuthor(r.Context(), identity.Id)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}
