package handlers

import (
	"blogapp/auth"
	"blogapp/storage/models"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleUpdatePost applies the body to a post owned by the caller. Absent or
// empty fields keep their stored values.
func (h *HTTPHandler) HandleUpdatePost(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	postId := mux.Vars(r)["postId"]
	data, ok := readPostRequest(w, r)
	if !ok {
		return
	}

	post, err := h.Storage.PatchPost(r.Context(), postId, identity.Id, models.PostPatch{
		Title:   data.Title,
		Content: data.Content,
		Tags:    data.Tags,
	})
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{POST_UPDATED_MESSAGE, post})
}
