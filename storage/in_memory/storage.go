package in_memory

import (
	"blogapp/storage"
	"blogapp/storage/models"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryStorage struct {
	mut     sync.RWMutex
	posts   map[string]models.Post
	postIds []string
	users   map[string]models.User
}

// AddUser registers a user so that posts and identities can resolve it.
func (s *InMemoryStorage) AddUser(user models.User) {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.users[user.Id] = user
}

func (s *InMemoryStorage) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.collect(func(models.Post) bool { return true }), nil
}

func (s *InMemoryStorage) ListPostsByAuthor(ctx context.Context, authorId string) ([]models.Post, error) {
	return s.collect(func(p models.Post) bool { return p.Author.Id == authorId }), nil
}

func (s *InMemoryStorage) GetPost(ctx context.Context, postId string) (*models.Post, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	post, found := s.posts[postId]
	if !found {
		return nil, fmt.Errorf("no post with id %v: %w", postId, storage.NotFoundError)
	}
	return s.joined(post), nil
}

func (s *InMemoryStorage) AddPost(ctx context.Context, authorId string, draft models.PostDraft) (*models.Post, error) {
	if err := storage.ValidateDraft(authorId, draft); err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	post := models.Post{
		Id:        uuid.New().String(),
		Title:     draft.Title,
		Content:   draft.Content,
		Tags:      draft.NormalizedTags(),
		Author:    &models.User{Id: authorId},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mut.Lock()
	defer s.mut.Unlock()
	s.posts[post.Id] = post
	s.postIds = append(s.postIds, post.Id)
	return s.joined(post), nil
}

func (s *InMemoryStorage) PatchPost(ctx context.Context, postId string, authorId string, patch models.PostPatch) (*models.Post, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	post, found := s.posts[postId]
	if !found || post.Author.Id != authorId {
		return nil, fmt.Errorf("no post with id %v owned by %v: %w", postId, authorId, storage.NotFoundError)
	}
	patch.ApplyTo(&post)
	post.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.posts[postId] = post
	return s.joined(post), nil
}

func (s *InMemoryStorage) DeletePost(ctx context.Context, postId string, authorId string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	post, found := s.posts[postId]
	if !found || post.Author.Id != authorId {
		return fmt.Errorf("no post with id %v owned by %v: %w", postId, authorId, storage.NotFoundError)
	}
	delete(s.posts, postId)
	for i, id := range s.postIds {
		if id == postId {
			s.postIds = append(s.postIds[:i], s.postIds[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStorage) GetUser(ctx context.Context, userId string) (*models.User, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	user, found := s.users[userId]
	if !found {
		return nil, fmt.Errorf("no user with id %v: %w", userId, storage.NotFoundError)
	}
	return &user, nil
}

func (s *InMemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *InMemoryStorage) Close(ctx context.Context) error {
	return nil
}

// collect walks posts from the most recently inserted one, which keeps
// posts sharing a creation timestamp in newest-first order.
func (s *InMemoryStorage) collect(keep func(models.Post) bool) []models.Post {
	s.mut.RLock()
	defer s.mut.RUnlock()
	posts := make([]models.Post, 0)
	for i := len(s.postIds) - 1; i >= 0; i-- {
		post := s.posts[s.postIds[i]]
		if keep(post) {
			posts = append(posts, *s.joined(post))
		}
	}
	return posts
}

// joined returns a copy of the post with the author resolved against the
// known users. An unknown author is rendered as null.
func (s *InMemoryStorage) joined(post models.Post) *models.Post {
	post.Tags = append([]string{}, post.Tags...)
	if user, found := s.users[post.Author.Id]; found {
		post.Author = &user
	} else {
		post.Author = nil
	}
	return &post
}

func CreateInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		posts: make(map[string]models.Post),
		users: make(map[string]models.User),
	}
}
