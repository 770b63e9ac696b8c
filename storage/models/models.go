package models

import (
	"time"
)

// User is the subset of an account that is joined into post responses.
type User struct {
	Id    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Post struct {
	Id        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Author    *User     `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostDraft holds the fields of a post being created.
type PostDraft struct {
	Title   string
	Content string
	Tags    []string
}

// NormalizedTags returns the draft tags, or an empty list when none were given.
func (d PostDraft) NormalizedTags() []string {
	if d.Tags == nil {
		return []string{}
	}
	return append([]string{}, d.Tags...)
}

// PostPatch holds the fields of an update request. Empty title or content
// and nil tags leave the stored value untouched; an empty non-nil tag list
// replaces the tags.
type PostPatch struct {
	Title   string
	Content string
	Tags    []string
}

func (p PostPatch) ApplyTo(post *Post) {
	if p.Title != "" {
		post.Title = p.Title
	}
	if p.Content != "" {
		post.Content = p.Content
	}
	if p.Tags != nil {
		post.Tags = append([]string{}, p.Tags...)
	}
}
