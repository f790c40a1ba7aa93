package repositories

import (
	"context"

	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrRecipeNotFound is returned when no recipe matches the given ID.
var ErrRecipeNotFound = errors.New("recipe not found")

// RecipeRepository defines the recipe operations the comment system needs
type RecipeRepository interface {
	GetRecipeByID(ctx context.Context, id string) (*models.Recipe, error)
	AdjustCommentsCount(ctx context.Context, recipeID string, delta int) error
}

// MongoRecipeRepository implements RecipeRepository for MongoDB
type MongoRecipeRepository struct {
	collection *mongo.Collection
}

// NewMongoRecipeRepository creates a new MongoRecipeRepository
func NewMongoRecipeRepository(db *mongo.Database) *MongoRecipeRepository {
	return &MongoRecipeRepository{collection: db.Collection("recipes")}
}

// GetRecipeByID retrieves a recipe by ID from MongoDB. A malformed ID is
// reported as ErrRecipeNotFound.
func (r *MongoRecipeRepository) GetRecipeByID(ctx context.Context, id string) (*models.Recipe, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRecipeNotFound
	}

	var recipe models.Recipe
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&recipe)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecipeNotFound
		}
		return nil, errors.Wrapf(err, "find recipe %s", id)
	}
	return &recipe, nil
}

// AdjustCommentsCount adds delta to the recipe's comments_count. The counter
// is clamped at zero.
func (r *MongoRecipeRepository) AdjustCommentsCount(ctx context.Context, recipeID string, delta int) error {
	objID, err := primitive.ObjectIDFromHex(recipeID)
	if err != nil {
		return errors.Wrapf(err, "invalid recipe ID %q", recipeID)
	}
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, commentsCountUpdate(delta))
	return errors.Wrapf(err, "adjust comments count of recipe %s", recipeID)
}

// commentsCountUpdate is an update pipeline setting
// comments_count = max(0, comments_count + delta). A missing counter counts
// as zero.
func commentsCountUpdate(delta int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "comments_count", Value: bson.D{{Key: "$max", Value: bson.A{
			0,
			bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$comments_count", 0}}},
				delta,
			}}},
		}}}}}}},
	}
}
