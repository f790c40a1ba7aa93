package router

import (
	"github.com/anonto42/recipe-swap/backend/internal/commentstore"
	"github.com/anonto42/recipe-swap/backend/internal/handlers"
	"github.com/anonto42/recipe-swap/backend/internal/middleware"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/notify"
	"github.com/anonto42/recipe-swap/backend/internal/realtime"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/anonto42/recipe-swap/backend/pkg/config"
	"github.com/anonto42/recipe-swap/backend/pkg/firebase"
	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Deps are the connections the routes are built on. Redis and Firebase are
// optional.
type Deps struct {
	Config   *config.Config
	Postgres *gorm.DB
	Mongo    *mongo.Database
	Redis    *redis.Client
	Firebase *firebase.App
}

// SetupRoutes migrates the schema, wires repositories, stores and handlers,
// and registers every route.
func SetupRoutes(e *echo.Echo, deps Deps) error {
	err := deps.Postgres.AutoMigrate(
		&models.User{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Notification{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to auto migrate models")
	}
	log.Info().Msg("PostgreSQL auto-migrations completed")

	e.GET("/health", handlers.HealthCheck)

	// --- Repositories ---
	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	commentRepo := repositories.NewPostgresCommentRepository(deps.Postgres)
	commentLikeRepo := repositories.NewPostgresCommentLikeRepository(deps.Postgres)
	notificationRepo := repositories.NewPostgresNotificationRepository(deps.Postgres)
	recipeRepo := repositories.NewMongoRecipeRepository(deps.Mongo)

	// --- Change events ---
	var broker realtime.Broker
	if deps.Redis != nil {
		broker = realtime.NewRedisBrokerFromClient(deps.Redis)
		log.Info().Msg("Comment events go through Redis pub/sub")
	} else {
		broker = realtime.NewHub()
		log.Info().Msg("Comment events stay in process")
	}

	// --- Notifications ---
	var sink *notify.Sink
	if deps.Firebase != nil && deps.Firebase.MessagingClient != nil {
		sink = notify.NewSink(notificationRepo, deps.Firebase.MessagingClient)
	} else {
		sink = notify.NewSink(notificationRepo, nil)
	}

	store := commentstore.New(commentRepo, commentLikeRepo, recipeRepo, broker)
	storeFor := func(userID string) handlers.CommentStore { return store.WithActor(userID) }

	// --- Authentication ---
	var authenticator middleware.Authenticator
	switch {
	case deps.Config.AuthProvider == config.AuthProviderFirebase && deps.Firebase != nil:
		authenticator = middleware.NewFirebaseAuthenticator(deps.Firebase.AuthClient, userRepo)
		log.Info().Msg("Using Firebase authentication")
	case deps.Config.AuthProvider == config.AuthProviderFirebase:
		return errors.New("AUTH_PROVIDER=firebase requires FIREBASE_CREDENTIALS_PATH")
	default:
		authenticator = middleware.NewJWTAuthenticator(deps.Config.JWTSecret)
		log.Info().Msg("Using JWT authentication")
	}

	// Comment threads are readable anonymously; comment handlers reject
	// anonymous writes themselves.
	api := e.Group("/api/v1", middleware.OptionalAuth(authenticator))
	commentHandler := handlers.NewCommentHandler(storeFor, recipeRepo, userRepo, broker, sink)
	commentHandler.RegisterCommentRoutes(api)
	log.Info().Msg("Comment routes configured")

	notificationHandler := handlers.NewNotificationHandler(notificationRepo, userRepo)
	notificationHandler.RegisterNotificationRoutes(api, middleware.RequireAuth(authenticator))
	log.Info().Msg("Notification routes configured")

	return nil
}
