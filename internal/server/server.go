package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/contactskeeper/apiserver/config"
	"github.com/contactskeeper/apiserver/internal/auth"
	"github.com/contactskeeper/apiserver/internal/cache"
	"github.com/contactskeeper/apiserver/internal/db"
	"github.com/contactskeeper/apiserver/internal/gravatar"
	"github.com/contactskeeper/apiserver/internal/handlers"
	"github.com/contactskeeper/apiserver/internal/mail"
	"github.com/contactskeeper/apiserver/internal/mq"
	"github.com/contactskeeper/apiserver/internal/services"
	"github.com/contactskeeper/apiserver/internal/storage"
	"github.com/contactskeeper/apiserver/internal/store"
)

// Server wraps the HTTP server, router, and background mail dispatcher.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	cache      cache.Cache
	queue      *mq.Queue
	cancelMail context.CancelFunc
}

// New constructs a Server with all dependencies wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	signer := auth.NewSigner(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpirationSeconds)*time.Second)

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userCache, err := cache.NewRedisCache(ctx, cfg.Redis)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	queueBackend, err := newQueueBackend(ctx, cfg.MQ)
	if err != nil {
		_ = userCache.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("connect message queue: %w", err)
	}
	queue := mq.New(queueBackend)

	storageBackend, err := newStorageBackend(ctx, cfg.Storage)
	if err != nil {
		_ = queue.Close()
		_ = userCache.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("connect object storage: %w", err)
	}
	avatarStorage := storage.NewStorage(storageBackend)
	if err := avatarStorage.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure avatar bucket", "error", err)
	}

	userService := services.NewUserService(store.NewUserRepository(dbConn), userCache, gravatar.NewClient())
	contactService := services.NewContactService(store.NewContactRepository(dbConn))

	authMiddleware := handlers.Authenticator(signer, userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}),
	)
	router.Get("/", handlers.Welcome)
	router.Route("/api", func(r chi.Router) {
		r.Get("/healthchecker", handlers.Healthchecker(dbConn))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, userService, signer, queue, avatarStorage, authMiddleware)
		})
		r.Route("/contacts", func(r chi.Router) {
			handlers.ContactsRouter(r, contactService, authMiddleware)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UsersRouter(r, userService, authMiddleware)
		})
	})

	// The mail dispatcher outlives individual requests; it stops on
	// Shutdown.
	mailCtx, cancelMail := context.WithCancel(context.Background())
	mailer := mail.NewMailer(cfg.SMTP, cfg.BaseURL)
	go func() {
		if err := mail.Dispatch(mailCtx, queue, mailer); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mail dispatcher stopped", "error", err)
		}
	}()

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		cache:      userCache,
		queue:      queue,
		cancelMail: cancelMail,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the mail dispatcher and closes all connections.
func (s *Server) Shutdown() error {
	if s.cancelMail != nil {
		s.cancelMail()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func newQueueBackend(ctx context.Context, cfg config.MQConfig) (mq.Backend, error) {
	switch cfg.Provider {
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	case "rabbitmq", "":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("unknown mq provider %q", cfg.Provider)
	}
}

func newStorageBackend(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Provider {
	case "gcs":
		return storage.NewGCSClient(ctx, cfg.GCS)
	case "minio", "":
		return storage.NewMinioClient(cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
