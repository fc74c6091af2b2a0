package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"medchat/internal/adapter/api"
	"medchat/internal/adapter/api/handler"
	apimiddleware "medchat/internal/adapter/api/middleware"
	"medchat/internal/adapter/api/router"
	"medchat/internal/adapter/repository"
	"medchat/internal/adapter/repository/memory"
	domainrepo "medchat/internal/domain/repository"
	"medchat/internal/domain/service"
	"medchat/internal/infrastructure/attachment"
	"medchat/internal/infrastructure/firebase"
	"medchat/internal/infrastructure/ratelimit"
	"medchat/internal/infrastructure/storage"
	"medchat/internal/infrastructure/websocket"
	"medchat/internal/usecase"
	"medchat/pkg/config"
	"medchat/pkg/logger"
)

type verifier interface {
	apimiddleware.TokenVerifier
	handler.ConnectionTester
}

type repositories struct {
	conversations domainrepo.ConversationRepository
	messages      domainrepo.MessageRepository
	users         domainrepo.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repos       repositories
		tokens      verifier
		fileStorage service.FileStorage
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		if !cfg.AcceptsDevTokens() {
			logger.Fatal("The memory backend requires ENVIRONMENT=development")
		}
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		repos = repositories{
			conversations: memory.NewConversationRepository(store),
			messages:      memory.NewMessageRepository(store),
			users:         memory.NewUserRepository(store),
		}
		tokens = firebase.NewDevTokenVerifier(nil)

	case config.BackendFirestore:
		opt := credentials(cfg)

		firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase: %v", err)
		}

		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase Auth: %v", err)
		}

		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			logger.Fatal("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		repos = repositories{
			conversations: repository.NewFirestoreConversationRepository(firestoreClient),
			messages:      repository.NewFirestoreMessageRepository(firestoreClient),
			users:         repository.NewFirestoreUserRepository(firestoreClient),
		}

		firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
		if cfg.AcceptsDevTokens() {
			logger.Warn("DEV_TOKENS enabled; dev:<uid> bearer tokens are accepted")
			tokens = firebase.NewDevTokenVerifier(firebaseAuthClient)
		} else {
			tokens = firebaseAuthClient
		}

		if cfg.StorageBucket != "" {
			storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opt)
			if err != nil {
				logger.Fatal("Failed to initialize Cloud Storage: %v", err)
			}
			defer storageClient.Close()
			fileStorage = storageClient
		} else {
			logger.Warn("STORAGE_BUCKET not set; file uploads are disabled")
		}

	default:
		logger.Fatal("Unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	opts := usecase.Options{
		RecentLimit:           cfg.Chat.RecentLimit,
		OlderLimit:            cfg.Chat.OlderLimit,
		TypingStaleAfter:      cfg.Chat.TypingStaleAfter,
		TypingRefreshInterval: cfg.Chat.TypingRefreshInterval,
	}
	encoder := attachment.NewEncoder(cfg.Chat.ImageMaxWidth, cfg.Chat.ImageJPEGQuality)

	messageUseCase := usecase.NewMessageUseCase(repos.conversations, repos.messages, repos.users, encoder, fileStorage, opts)
	conversationUseCase := usecase.NewConversationUseCase(repos.conversations, repos.messages, repos.users, messageUseCase, opts)
	presenceUseCase := usecase.NewPresenceUseCase(repos.users, opts)
	directoryUseCase := usecase.NewDirectoryUseCase(repos.users)

	rateLimiter := ratelimit.NewRateLimiter(nil)
	rateLimiter.StartCleanup(ctx, 5*time.Minute, 30*time.Minute)

	wsManager := websocket.NewManager(websocket.Services{
		Conversations: conversationUseCase,
		Messages:      messageUseCase,
		Presence:      presenceUseCase,
		RateLimiter:   rateLimiter,
	})
	wsManager.Start(ctx)

	handler.Setup(conversationUseCase, messageUseCase, presenceUseCase, directoryUseCase)
	handler.SetupHealthHandler(tokens, cfg.StoreBackend)
	handler.SetupDevTokenHandler(repos.users)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(tokens)
	roleMiddleware := apimiddleware.NewRoleMiddleware(repos.users)
	rateLimitMiddleware := apimiddleware.NewRateLimitMiddleware(rateLimiter)
	e.Use(rateLimitMiddleware.PerIP())

	wsHandler := handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins)

	router.Setup(e, authMiddleware, roleMiddleware, rateLimitMiddleware, wsHandler)
	router.SetupDevRouter(e, cfg.AcceptsDevTokens())

	go func() {
		logger.Info("Starting server on port %s (backend=%s)", cfg.ServerPort, cfg.StoreBackend)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

func credentials(cfg *config.Config) option.ClientOption {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	}

	path := cfg.FirebaseServiceAccountPath
	if path == "" {
		path = "./firebase-service-account.json"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Fatal("Service account file does not exist: %s", path)
	}
	logger.Info("Using Firebase service account from file: %s", path)
	return option.WithCredentialsFile(path)
}
