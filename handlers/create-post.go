package handlers

import (
	"blogapp/auth"
	"blogapp/storage/models"
	"net/http"
)

type PostResponse struct {
	Message string       `json:"message"`
	Post    *models.Post `json:"post"`
}

func (h *HTTPHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	data, ok := readPostRequest(w, r)
	if !ok {
		return
	}

	post, err := h.Storage.AddPost(r.Context(), identity.Id, models.PostDraft{
		Title:   data.Title,
		Content: data.Content,
		Tags:    data.Tags,
	})
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PostResponse{POST_CREATED_MESSAGE, post})
}
