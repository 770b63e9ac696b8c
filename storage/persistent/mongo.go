package persistent

import (
	"blogapp/storage"
	"blogapp/storage/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Post struct {
	Id        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	Tags      []string           `bson:"tags"`
	Author    primitive.ObjectID `bson:"author"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type User struct {
	Id    primitive.ObjectID `bson:"_id"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
}

// joinedPost is a post as produced by the author $lookup stage.
type joinedPost struct {
	Id        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	Tags      []string           `bson:"tags"`
	Author    *User              `bson:"author,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (u *User) toModel() *models.User {
	return &models.User{Id: u.Id.Hex(), Name: u.Name, Email: u.Email}
}

func (p *joinedPost) toModel() models.Post {
	post := models.Post{
		Id:        p.Id.Hex(),
		Title:     p.Title,
		Content:   p.Content,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if p.Author != nil {
		post.Author = p.Author.toModel()
	}
	return post
}

type MongoStorage struct {
	client *mongo.Client
	posts  *mongo.Collection
	users  *mongo.Collection
}

func parseId(kind, id string) (primitive.ObjectID, error) {
	objectId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("cast to ObjectId failed for %s %q: %w", kind, id, storage.InvalidIdError)
	}
	return objectId, nil
}

// joinPipeline selects posts matching filter, newest first, with the author
// reference replaced by the user's name and email.
func joinPipeline(filter bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "author"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "author"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$author"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "title", Value: 1},
			{Key: "content", Value: 1},
			{Key: "tags", Value: 1},
			{Key: "createdAt", Value: 1},
			{Key: "updatedAt", Value: 1},
			{Key: "author._id", Value: 1},
			{Key: "author.name", Value: 1},
			{Key: "author.email", Value: 1},
		}}},
	}
}

// patchUpdate builds the $set document for a patch, skipping fields the
// patch leaves untouched.
func patchUpdate(patch models.PostPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Title != "" {
		set["title"] = patch.Title
	}
	if patch.Content != "" {
		set["content"] = patch.Content
	}
	if patch.Tags != nil {
		set["tags"] = patch.Tags
	}
	return bson.M{"$set": set}
}

func (s *MongoStorage) findJoined(ctx context.Context, filter bson.M) ([]models.Post, error) {
	cursor, err := s.posts.Aggregate(ctx, joinPipeline(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to find posts: %s, %w", err.Error(), storage.InternalError)
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		err := cursor.Close(ctx)
		if err != nil {
			slog.Warn("cursor closing failed", slog.String("error", err.Error()))
		}
	}(cursor, ctx)

	posts := make([]models.Post, 0)
	for cursor.Next(ctx) {
		var nextPost joinedPost
		if err = cursor.Decode(&nextPost); err != nil {
			return nil, fmt.Errorf("decode error: %s, %w", err, storage.InternalError)
		}
		posts = append(posts, nextPost.toModel())
	}
	if err = cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %s, %w", err, storage.InternalError)
	}
	return posts, nil
}

func (s *MongoStorage) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.findJoined(ctx, bson.M{})
}

func (s *MongoStorage) ListPostsByAuthor(ctx context.Context, authorId string) ([]models.Post, error) {
	authorMongoId, err := parseId("author", authorId)
	if err != nil {
		return nil, err
	}
	return s.findJoined(ctx, bson.M{"author": authorMongoId})
}

func (s *MongoStorage) GetPost(ctx context.Context, postId string) (*models.Post, error) {
	postMongoId, err := parseId("post", postId)
	if err != nil {
		return nil, err
	}
	posts, err := s.findJoined(ctx, bson.M{"_id": postMongoId})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("no document with id %v: %w", postId, storage.NotFoundError)
	}
	return &posts[0], nil
}

func (s *MongoStorage) AddPost(ctx context.Context, authorId string, draft models.PostDraft) (*models.Post, error) {
	if err := storage.ValidateDraft(authorId, draft); err != nil {
		return nil, err
	}
	authorMongoId, err := parseId("author", authorId)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	post := Post{
		Title:     draft.Title,
		Content:   draft.Content,
		Tags:      draft.NormalizedTags(),
		Author:    authorMongoId,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.posts.InsertOne(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to insert post: %s, %w", err.Error(), storage.InternalError)
	}
	return s.GetPost(ctx, id.InsertedID.(primitive.ObjectID).Hex())
}

func (s *MongoStorage) PatchPost(ctx context.Context, postId string, authorId string, patch models.PostPatch) (*models.Post, error) {
	postMongoId, err := parseId("post", postId)
	if err != nil {
		return nil, err
	}
	authorMongoId, err := parseId("author", authorId)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"_id": postMongoId, "author": authorMongoId}
	update := patchUpdate(patch, time.Now().UTC().Truncate(time.Millisecond))

	upsert := false
	after := options.After
	opt := options.FindOneAndUpdateOptions{
		ReturnDocument: &after,
		Upsert:         &upsert,
	}
	var updated Post
	err = s.posts.FindOneAndUpdate(ctx, filter, update, &opt).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("no document with id %v owned by %v: %w", postId, authorId, storage.NotFoundError)
		}
		return nil, fmt.Errorf("failed to update post: %s, %w", err.Error(), storage.InternalError)
	}
	return s.withAuthor(ctx, &updated)
}

// withAuthor joins the author of a post read without the $lookup stage.
func (s *MongoStorage) withAuthor(ctx context.Context, p *Post) (*models.Post, error) {
	joined := joinedPost{
		Id:        p.Id,
		Title:     p.Title,
		Content:   p.Content,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	post := joined.toModel()
	author, err := s.GetUser(ctx, p.Author.Hex())
	if err != nil && !errors.Is(err, storage.NotFoundError) {
		return nil, err
	}
	post.Author = author
	return &post, nil
}

func (s *MongoStorage) DeletePost(ctx context.Context, postId string, authorId string) error {
	postMongoId, err := parseId("post", postId)
	if err != nil {
		return err
	}
	authorMongoId, err := parseId("author", authorId)
	if err != nil {
		return err
	}
	result, err := s.posts.DeleteOne(ctx, bson.M{"_id": postMongoId, "author": authorMongoId})
	if err != nil {
		return fmt.Errorf("failed to delete post: %s, %w", err.Error(), storage.InternalError)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("no document with id %v owned by %v: %w", postId, authorId, storage.NotFoundError)
	}
	return nil
}

func (s *MongoStorage) GetUser(ctx context.Context, userId string) (*models.User, error) {
	userMongoId, err := parseId("user", userId)
	if err != nil {
		return nil, err
	}
	var result User
	opts := options.FindOne().SetProjection(bson.M{"name": 1, "email": 1})
	err = s.users.FindOne(ctx, bson.M{"_id": userMongoId}, opts).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("no user with id %v: %w", userId, storage.NotFoundError)
		}
		return nil, fmt.Errorf("failed to find user: %s, %w", err.Error(), storage.InternalError)
	}
	return result.toModel(), nil
}

func (s *MongoStorage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %s, %w", err.Error(), storage.InternalError)
	}
	return nil
}

func (s *MongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateMongoStorage connects to dbUrl, checks the server is reachable and
// ensures the post indexes exist.
func CreateMongoStorage(ctx context.Context, dbUrl, dbName string, connectTimeout time.Duration) (*MongoStorage, error) {
	clientOptions := options.Client().
		ApplyURI(dbUrl).
		SetServerSelectionTimeout(connectTimeout)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	s := &MongoStorage{
		client: client,
		posts:  client.Database(dbName).Collection("posts"),
		users:  client.Database(dbName).Collection("users"),
	}
	if err = s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err = ensurePostsIndexes(ctx, s.posts); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}
