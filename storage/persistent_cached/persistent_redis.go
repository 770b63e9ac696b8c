package persistent_cached

import (
	"blogapp/storage"
	"blogapp/storage/models"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix        = "post:"
	generationPrefix = "post_gen:"
)

// fillScript stores a post read from the backing storage only if no write
// evicted it since the read started. KEYS[1] is the post key, KEYS[2] its
// generation; ARGV is the generation seen before the read, the payload and
// the ttl in milliseconds.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// cachedPost is a post without its joined author, which is resolved on every
// read so that account changes show up immediately.
type cachedPost struct {
	models.Post
	AuthorId string `json:"authorId,omitempty"`
}

func encodePost(post *models.Post) ([]byte, error) {
	entry := cachedPost{Post: *post}
	if post.Author != nil {
		entry.AuthorId = post.Author.Id
	}
	entry.Author = nil
	return json.Marshal(entry)
}

func saveToCache(ctx context.Context, client *redis.Client, post *models.Post, ttl time.Duration) {
	j, err := encodePost(post)
	if err == nil {
		err = client.Set(ctx, keyPrefix+post.Id, j, ttl).Err()
	}
	if err != nil {
		slog.Warn("failed to save post to redis", slog.String("post_id", post.Id), slog.String("error", err.Error()))
	}
}

// readGeneration returns the eviction counter of a post. ok is false when
// redis could not answer, in which case the post must not be cached.
func readGeneration(ctx context.Context, client *redis.Client, postId string) (gen string, ok bool) {
	gen, err := client.Get(ctx, generationPrefix+postId).Result()
	if err == redis.Nil {
		return "0", true
	}
	if err != nil {
		slog.Warn("failed to read post generation from redis", slog.String("post_id", postId), slog.String("error", err.Error()))
		return "", false
	}
	return gen, true
}

func fillCache(ctx context.Context, client *redis.Client, post *models.Post, gen string, ttl time.Duration) {
	j, err := encodePost(post)
	if err == nil {
		keys := []string{keyPrefix + post.Id, generationPrefix + post.Id}
		err = fillScript.Run(ctx, client, keys, gen, j, ttl.Milliseconds()).Err()
	}
	if err != nil {
		slog.Warn("failed to fill post cache", slog.String("post_id", post.Id), slog.String("error", err.Error()))
	}
}

func getFromCache(ctx context.Context, client *redis.Client, postId string) (*cachedPost, error) {
	val, err := client.Get(ctx, keyPrefix+postId).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("failed to get post from redis", slog.String("post_id", postId), slog.String("error", err.Error()))
		}
		return nil, err
	}
	var p cachedPost
	if err = json.Unmarshal(val, &p); err != nil {
		slog.Warn("failed to decode cached post", slog.String("post_id", postId), slog.String("error", err.Error()))
		return nil, err
	}
	return &p, nil
}

// removeFromCache bumps the post generation before deleting the entry, so
// that reads already in flight do not put the old version back.
func removeFromCache(ctx context.Context, client *redis.Client, postId string, generationTTL time.Duration) {
	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationPrefix+postId)
		pipe.Expire(ctx, generationPrefix+postId, generationTTL)
		pipe.Del(ctx, keyPrefix+postId)
		return nil
	})
	if err != nil {
		slog.Warn("failed to remove post from redis", slog.String("post_id", postId), slog.String("error", err.Error()))
	}
}

func CreatePersistentStorageCachedWithRedis(persistentStorage storage.Storage, redisUrl string, ttl time.Duration) *PersistentStorageWithCache {
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisUrl,
	})
	return &PersistentStorageWithCache{
		client:            redisClient,
		persistentStorage: persistentStorage,
		ttl:               ttl,
	}
}

// PersistentStorageWithCache serves single-post reads from redis and keeps
// the cache consistent on writes. Lists always go to the underlying storage.
type PersistentStorageWithCache struct {
	client            *redis.Client
	persistentStorage storage.Storage
	ttl               time.Duration
}

// generationTTL outlives any cache entry filled from a read that started
// before the eviction.
func (s *PersistentStorageWithCache) generationTTL() time.Duration {
	return s.ttl + time.Hour
}

func (s *PersistentStorageWithCache) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.persistentStorage.ListPosts(ctx)
}

func (s *PersistentStorageWithCache) ListPostsByAuthor(ctx context.Context, authorId string) ([]models.Post, error) {
	return s.persistentStorage.ListPostsByAuthor(ctx, authorId)
}

// joinAuthor resolves the author of a cached post. ok is false when the
// author lookup failed and the post has to be read from storage instead.
func (s *PersistentStorageWithCache) joinAuthor(ctx context.Context, cached *cachedPost) (*models.Post, bool) {
	post := cached.Post
	if cached.AuthorId == "" {
		return &post, true
	}
	author, err := s.persistentStorage.GetUser(ctx, cached.AuthorId)
	if err != nil {
		if errors.Is(err, storage.NotFoundError) {
			return &post, true
		}
		return nil, false
	}
	post.Author = author
	return &post, true
}

func (s *PersistentStorageWithCache) GetPost(ctx context.Context, postId string) (*models.Post, error) {
	if cached, err := getFromCache(ctx, s.client, postId); err == nil {
		if post, ok := s.joinAuthor(ctx, cached); ok {
			return post, nil
		}
	}
	gen, canFill := readGeneration(ctx, s.client, postId)
	post, err := s.persistentStorage.GetPost(ctx, postId)
	if err == nil && canFill {
		fillCache(ctx, s.client, post, gen, s.ttl)
	}
	return post, err
}

func (s *PersistentStorageWithCache) AddPost(ctx context.Context, authorId string, draft models.PostDraft) (*models.Post, error) {
	post, err := s.persistentStorage.AddPost(ctx, authorId, draft)
	if err == nil {
		saveToCache(ctx, s.client, post, s.ttl)
	}
	return post, err
}

func (s *PersistentStorageWithCache) PatchPost(ctx context.Context, postId string, authorId string, patch models.PostPatch) (*models.Post, error) {
	post, err := s.persistentStorage.PatchPost(ctx, postId, authorId, patch)
	if err == nil {
		removeFromCache(ctx, s.client, post.Id, s.generationTTL())
	}
	return post, err
}

func (s *PersistentStorageWithCache) DeletePost(ctx context.Context, postId string, authorId string) error {
	err := s.persistentStorage.DeletePost(ctx, postId, authorId)
	if err == nil {
		removeFromCache(ctx, s.client, postId, s.generationTTL())
	}
	return err
}

func (s *PersistentStorageWithCache) GetUser(ctx context.Context, userId string) (*models.User, error) {
	return s.persistentStorage.GetUser(ctx, userId)
}

func (s *PersistentStorageWithCache) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis ping failed", slog.String("error", err.Error()))
	}
	return s.persistentStorage.Ping(ctx)
}

func (s *PersistentStorageWithCache) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		slog.Warn("failed to close redis client", slog.String("error", err.Error()))
	}
	return s.persistentStorage.Close(ctx)
}
