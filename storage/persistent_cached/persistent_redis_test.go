package persistent_cached

import (
	"blogapp/storage"
	"blogapp/storage/in_memory"
	"blogapp/storage/models"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

// countingStorage counts single-post reads that reach the wrapped storage.
// afterRead, when set, runs once between the read and its return, the way a
// concurrent write would land while a slow read is in flight.
type countingStorage struct {
	*in_memory.InMemoryStorage
	gets      int
	afterRead func()
}

func (s *countingStorage) GetPost(ctx context.Context, postId string) (*models.Post, error) {
	s.gets++
	post, err := s.InMemoryStorage.GetPost(ctx, postId)
	if hook := s.afterRead; hook != nil {
		s.afterRead = nil
		hook()
	}
	return post, err
}

func setup(t *testing.T) (*PersistentStorageWithCache, *countingStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	backing := &countingStorage{InMemoryStorage: in_memory.CreateInMemoryStorage()}
	backing.AddUser(models.User{Id: "u1", Name: "Alice", Email: "alice@example.com"})
	cached := CreatePersistentStorageCachedWithRedis(backing, mr.Addr(), time.Minute)
	t.Cleanup(func() { _ = cached.client.Close() })
	return cached, backing, mr
}

func TestGetPost_ServedFromCacheAfterCreate(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+post.Id))

	fetched, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, backing.gets)
	assert.Equal(t, post.Title, fetched.Title)
	assert.Equal(t, post.Author, fetched.Author)
	assert.True(t, post.CreatedAt.Equal(fetched.CreatedAt))
}

func TestGetPost_ReadThrough(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := backing.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)

	_, err = cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	_, err = cached.GetPost(ctx, post.Id)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.gets)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+post.Id))
}

func TestGetPost_MissingIsNotCached(t *testing.T) {
	cached, _, mr := setup(t)
	_, err := cached.GetPost(ctx, "missing")
	assert.ErrorIs(t, err, storage.NotFoundError)
	assert.False(t, mr.Exists(keyPrefix+"missing"))
}

func TestPatchPost_EvictsCachedPost(t *testing.T) {
	cached, _, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)

	_, err = cached.PatchPost(ctx, post.Id, "u1", models.PostPatch{Content: "C"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyPrefix+post.Id))

	fetched, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, "C", fetched.Content)
}

func TestPatchPost_ForeignPostKeepsCache(t *testing.T) {
	cached, _, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)

	_, err = cached.PatchPost(ctx, post.Id, "u2", models.PostPatch{Content: "C"})
	assert.ErrorIs(t, err, storage.NotFoundError)
	assert.True(t, mr.Exists(keyPrefix+post.Id))
}

func TestDeletePost_EvictsCachedPost(t *testing.T) {
	cached, _, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)

	require.NoError(t, cached.DeletePost(ctx, post.Id, "u1"))
	assert.False(t, mr.Exists(keyPrefix+post.Id))

	_, err = cached.GetPost(ctx, post.Id)
	assert.ErrorIs(t, err, storage.NotFoundError)
}

func TestUnavailableRedisFallsBackToStorage(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := backing.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	mr.Close()

	fetched, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, post.Id, fetched.Id)
	assert.NoError(t, cached.Ping(ctx))
}

func TestGetPost_DeleteDuringReadIsNotCached(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := backing.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	backing.afterRead = func() {
		require.NoError(t, cached.DeletePost(ctx, post.Id, "u1"))
	}

	_, err = cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyPrefix+post.Id))

	_, err = cached.GetPost(ctx, post.Id)
	assert.ErrorIs(t, err, storage.NotFoundError)
}

func TestGetPost_UpdateDuringReadIsNotCached(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := backing.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	backing.afterRead = func() {
		_, err := cached.PatchPost(ctx, post.Id, "u1", models.PostPatch{Content: "C"})
		require.NoError(t, err)
	}

	stale, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, "B", stale.Content)
	assert.False(t, mr.Exists(keyPrefix+post.Id))

	fresh, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, "C", fresh.Content)
	assert.True(t, mr.Exists(keyPrefix+post.Id))
}

func TestGetPost_FillAfterEarlierEviction(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	_, err = cached.PatchPost(ctx, post.Id, "u1", models.PostPatch{Content: "C"})
	require.NoError(t, err)
	assert.True(t, mr.Exists(generationPrefix+post.Id))

	_, err = cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	_, err = cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)
}

func TestGetPost_CachedPostShowsCurrentAuthor(t *testing.T) {
	cached, backing, mr := setup(t)
	post, err := cached.AddPost(ctx, "u1", models.PostDraft{Title: "A", Content: "B"})
	require.NoError(t, err)
	raw, err := mr.Get(keyPrefix + post.Id)
	require.NoError(t, err)
	assert.NotContains(t, raw, "Alice")

	backing.AddUser(models.User{Id: "u1", Name: "Alice Smith", Email: "alice@example.com"})

	fetched, err := cached.GetPost(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, backing.gets)
	require.NotNil(t, fetched.Author)
	assert.Equal(t, "Alice Smith", fetched.Author.Name)
}
