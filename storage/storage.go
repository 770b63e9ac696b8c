package storage

import (
	"blogapp/storage/models"
	"context"
	"errors"
	"fmt"
)

var (
	InternalError   = errors.New("storage internal error")
	ClientError     = errors.New("storage client error")
	NotFoundError   = fmt.Errorf("%w.not_found", ClientError)
	ValidationError = fmt.Errorf("%w.validation", InternalError)
	InvalidIdError  = fmt.Errorf("%w.invalid_id", InternalError)
	CastError       = fmt.Errorf("%w.cast", InternalError)
)

// Storage is the document store holding posts and the users they reference.
// Every returned post has its author joined.
type Storage interface {
	// ListPosts returns all posts, newest first.
	ListPosts(ctx context.Context) ([]models.Post, error)
	// ListPostsByAuthor returns the posts of one author, newest first.
	ListPostsByAuthor(ctx context.Context, authorId string) ([]models.Post, error)
	GetPost(ctx context.Context, postId string) (*models.Post, error)
	AddPost(ctx context.Context, authorId string, draft models.PostDraft) (*models.Post, error)
	// PatchPost updates the post only if it is owned by authorId; otherwise NotFoundError.
	PatchPost(ctx context.Context, postId string, authorId string, patch models.PostPatch) (*models.Post, error)
	// DeletePost removes the post only if it is owned by authorId; otherwise NotFoundError.
	DeletePost(ctx context.Context, postId string, authorId string) error
	GetUser(ctx context.Context, userId string) (*models.User, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ValidateDraft checks the fields the post schema marks as required.
func ValidateDraft(authorId string, draft models.PostDraft) error {
	var missing []string
	if draft.Title == "" {
		missing = append(missing, "title")
	}
	if draft.Content == "" {
		missing = append(missing, "content")
	}
	if authorId == "" {
		missing = append(missing, "author")
	}
	if len(missing) > 0 {
		return fmt.Errorf("post validation failed, required fields missing: %v: %w", missing, ValidationError)
	}
	return nil
}
