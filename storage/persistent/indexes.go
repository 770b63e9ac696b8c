package persistent

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

func postsIndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
		{
			Keys: bson.D{
				{Key: "author", Value: 1},
				{Key: "createdAt", Value: -1},
			},
		},
	}
}

func ensurePostsIndexes(ctx context.Context, posts *mongo.Collection) error {
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	_, err := posts.Indexes().CreateMany(ctx, postsIndexModels(), opts)
	if err != nil {
		return fmt.Errorf("posts: failed to ensure indexes %w", err)
	}
	return nil
}

// DatabaseName returns the database named in a connection string, or
// fallback when the URI names none.
func DatabaseName(uri, fallback string) string {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil || cs.Database == "" {
		return fallback
	}
	return cs.Database
}
