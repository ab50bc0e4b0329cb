package main

import (
	"context"
	"flag"
	"log"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"messengerService/config"
	"messengerService/pkg/api"
	"messengerService/pkg/app"
	"messengerService/pkg/auth"
	"messengerService/pkg/media"
	"messengerService/pkg/repository"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Loading configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Creating logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx := context.Background()

	firebaseApp, err := config.SetupFirebase(ctx)
	if err != nil {
		return err
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return err
	}
	authProvider := auth.NewFirebaseProvider(authClient)

	var docs repository.DocumentStore
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("Using in-memory document store; data is lost on exit")
		docs = repository.NewMemoryStore()
	default:
		firestoreClient, err := firebaseApp.Firestore(ctx)
		if err != nil {
			return err
		}
		defer firestoreClient.Close()
		docs = repository.NewFirestoreStore(firestoreClient)
	}

	storage := repository.NewStorage(docs, logger)

	var directory api.UserRepository = storage
	if cfg.DirectoryBackend == config.BackendPostgres {
		db, err := config.SetupDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("Successfully connected to database")

		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
		directory = repository.NewPostgresDirectory(db, logger)
	}

	var images api.ImageHost
	if cfg.MediaEnabled() {
		images = media.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryUploadPreset, logger)
	} else {
		logger.Warn("Cloudinary is not configured; image uploads are disabled")
	}

	userService := api.NewUserService(directory, authProvider)
	chatService := api.NewChatService(storage)

	server := app.NewServer(chi.NewRouter(), userService, chatService, authProvider, images, app.Settings{
		Addr:          cfg.ServerURL,
		WSAuthTimeout: cfg.WSAuthTimeout,
	}, logger)

	return server.Run()
}
