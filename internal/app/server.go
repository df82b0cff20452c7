// internal/app/server.go
package app

import (
	"fmt"
	"log"

	"backoffice-service/internal/config"
	"backoffice-service/internal/db"
	commandHandler "backoffice-service/internal/handlers/command"
	"backoffice-service/internal/middleware"
	"backoffice-service/internal/pkg/session"
	"backoffice-service/internal/repository/postgres"
	commandService "backoffice-service/internal/service/command"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	sessions session.Store
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Conversation store -----
	switch s.cfg.SessionBackend {
	case "redis":
		redisClient, err := db.NewRedisClient(db.RedisConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPass,
			PoolSize: 10,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.sessions = session.NewRedisStore(redisClient, s.cfg.SessionTTL, logger)
		logger.Info("using redis conversation store", zap.String("addr", s.cfg.RedisAddr))
	default:
		s.sessions = session.NewMemoryStore(s.cfg.SessionTTL, s.cfg.SessionSweepInterval, logger)
		logger.Info("using in-memory conversation store")
	}

	// ----- Repositories -----
	customerRepo := postgres.NewCustomerRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// ----- Services -----
	engine := commandService.NewEngine(customerRepo, orderRepo, s.sessions, logger)

	// ----- Handlers -----
	commandHandlerInst := commandHandler.NewCommandHandler(engine, logger)

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		CommandHandler: commandHandlerInst,
	}
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
