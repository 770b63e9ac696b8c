package persistent

import (
	"blogapp/storage"
	"blogapp/storage/models"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var ctx = context.Background()

func mockStorage(mt *mtest.T) *MongoStorage {
	return &MongoStorage{
		client: mt.Client,
		posts:  mt.DB.Collection("posts"),
		users:  mt.DB.Collection("users"),
	}
}

func postDoc(id, authorId primitive.ObjectID, title string, created time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: title},
		{Key: "content", Value: "content of " + title},
		{Key: "tags", Value: bson.A{"go"}},
		{Key: "author", Value: authorId},
		{Key: "createdAt", Value: created},
		{Key: "updatedAt", Value: created},
	}
}

func joinedDoc(id primitive.ObjectID, author bson.D, title string, created time.Time) bson.D {
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: title},
		{Key: "content", Value: "content of " + title},
		{Key: "createdAt", Value: created},
		{Key: "updatedAt", Value: created},
	}
	if author != nil {
		doc = append(doc, bson.E{Key: "author", Value: author})
	}
	return doc
}

func userDoc(id primitive.ObjectID, name string) bson.D {
	return bson.D{{Key: "_id", Value: id}, {Key: "name", Value: name}, {Key: "email", Value: name + "@example.com"}}
}

func TestMongoStorage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()

	mt.Run("list decodes joined authors", func(mt *mtest.T) {
		first, second := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch,
			joinedDoc(first, userDoc(alice, "alice"), "newer", created.Add(time.Hour)),
			joinedDoc(second, nil, "orphan", created),
		))

		posts, err := mockStorage(mt).ListPosts(ctx)
		require.NoError(mt, err)
		require.Len(mt, posts, 2)
		assert.Equal(mt, first.Hex(), posts[0].Id)
		assert.Equal(mt, &models.User{Id: alice.Hex(), Name: "alice", Email: "alice@example.com"}, posts[0].Author)
		assert.Equal(mt, []string{}, posts[0].Tags)
		assert.True(mt, created.Add(time.Hour).Equal(posts[0].CreatedAt))
		assert.Nil(mt, posts[1].Author)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "aggregate", evt.CommandName)
	})

	mt.Run("list by author filters on the author", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch))

		posts, err := mockStorage(mt).ListPostsByAuthor(ctx, alice.Hex())
		require.NoError(mt, err)
		assert.Empty(mt, posts)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		author, ok := evt.Command.Lookup("pipeline", "0", "$match", "author").ObjectIDOK()
		require.True(mt, ok)
		assert.Equal(mt, alice, author)
	})

	mt.Run("get missing post is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch))

		_, err := mockStorage(mt).GetPost(ctx, primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, storage.NotFoundError)
	})

	mt.Run("get with malformed id sends no command", func(mt *mtest.T) {
		_, err := mockStorage(mt).GetPost(ctx, "not-an-id")
		assert.ErrorIs(mt, err, storage.InvalidIdError)
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("server failure is internal", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad pipeline",
			Name:    "BadValue",
		}))

		_, err := mockStorage(mt).ListPosts(ctx)
		assert.ErrorIs(mt, err, storage.InternalError)
		assert.Contains(mt, err.Error(), "bad pipeline")
	})

	mt.Run("add inserts and returns the joined post", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, "test.posts", mtest.FirstBatch,
				joinedDoc(id, userDoc(alice, "alice"), "A", created)),
		)

		post, err := mockStorage(mt).AddPost(ctx, alice.Hex(), models.PostDraft{Title: "A", Content: "B"})
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), post.Id)
		assert.Equal(mt, "alice", post.Author.Name)

		insert := mt.GetStartedEvent()
		require.NotNil(mt, insert)
		assert.Equal(mt, "insert", insert.CommandName)
		author, ok := insert.Command.Lookup("documents", "0", "author").ObjectIDOK()
		require.True(mt, ok)
		assert.Equal(mt, alice, author)
		tags, ok := insert.Command.Lookup("documents", "0", "tags").ArrayOK()
		require.True(mt, ok)
		values, err := tags.Values()
		require.NoError(mt, err)
		assert.Empty(mt, values)
	})

	mt.Run("add without title is rejected before insert", func(mt *mtest.T) {
		_, err := mockStorage(mt).AddPost(ctx, alice.Hex(), models.PostDraft{Content: "B"})
		assert.ErrorIs(mt, err, storage.ValidationError)
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("patch of a foreign post is not found", func(mt *mtest.T) {
		postId := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := mockStorage(mt).PatchPost(ctx, postId.Hex(), bob.Hex(), models.PostPatch{Title: "T"})
		assert.ErrorIs(mt, err, storage.NotFoundError)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "findAndModify", evt.CommandName)
		owner, ok := evt.Command.Lookup("query", "author").ObjectIDOK()
		require.True(mt, ok)
		assert.Equal(mt, bob, owner)
		assert.Equal(mt, "T", evt.Command.Lookup("update", "$set", "title").StringValue())
	})

	mt.Run("patch returns the updated post with its author", func(mt *mtest.T) {
		postId := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: postDoc(postId, alice, "T", created)}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, userDoc(alice, "alice")),
		)

		post, err := mockStorage(mt).PatchPost(ctx, postId.Hex(), alice.Hex(), models.PostPatch{Title: "T"})
		require.NoError(mt, err)
		assert.Equal(mt, postId.Hex(), post.Id)
		assert.Equal(mt, "T", post.Title)
		assert.Equal(mt, []string{"go"}, post.Tags)
		assert.Equal(mt, &models.User{Id: alice.Hex(), Name: "alice", Email: "alice@example.com"}, post.Author)
	})

	mt.Run("patch of a post whose author is gone", func(mt *mtest.T) {
		postId := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: postDoc(postId, alice, "T", created)}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch),
		)

		post, err := mockStorage(mt).PatchPost(ctx, postId.Hex(), alice.Hex(), models.PostPatch{Title: "T"})
		require.NoError(mt, err)
		assert.Nil(mt, post.Author)
	})

	mt.Run("delete of a foreign post is not found", func(mt *mtest.T) {
		postId := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := mockStorage(mt).DeletePost(ctx, postId.Hex(), bob.Hex())
		assert.ErrorIs(mt, err, storage.NotFoundError)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		owner, ok := evt.Command.Lookup("deletes", "0", "q", "author").ObjectIDOK()
		require.True(mt, ok)
		assert.Equal(mt, bob, owner)
	})

	mt.Run("delete of an owned post", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := mockStorage(mt).DeletePost(ctx, primitive.NewObjectID().Hex(), alice.Hex())
		assert.NoError(mt, err)
	})

	mt.Run("get user", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch, userDoc(alice, "alice")),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch),
		)
		s := mockStorage(mt)

		user, err := s.GetUser(ctx, alice.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, "alice@example.com", user.Email)

		_, err = s.GetUser(ctx, bob.Hex())
		assert.ErrorIs(mt, err, storage.NotFoundError)
	})
}
