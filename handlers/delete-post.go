package handlers

import (
	"blogapp/auth"
	"net/http"

	"github.com/gorilla/mux"
)

func (h *HTTPHandler) HandleDeletePost(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	postId := mux.Vars(r)["postId"]
	if err := h.Storage.DeletePost(r.Context(), postId, identity.Id); err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: POST_DELETED_MESSAGE})
}
