package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/helpdeskhq/support-desk/internal/api/http"
	"github.com/helpdeskhq/support-desk/internal/api/http/handlers"
	"github.com/helpdeskhq/support-desk/internal/auth"
	"github.com/helpdeskhq/support-desk/internal/cache"
	"github.com/helpdeskhq/support-desk/internal/config"
	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/observability"
	"github.com/helpdeskhq/support-desk/internal/persistence"
	"github.com/helpdeskhq/support-desk/internal/repository"
	"github.com/helpdeskhq/support-desk/internal/service"
	"github.com/helpdeskhq/support-desk/internal/worker"
	"github.com/helpdeskhq/support-desk/migrations"
)

type repositories struct {
	tickets  repository.TicketRepository
	comments repository.CommentRepository
	history  repository.TicketHistoryRepository
	users    repository.UserRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, migrations.Files, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	repos := buildRepositories(pg)
	dispatcher := events.NewInMemoryDispatcher()

	var (
		relay     *worker.EventRelay
		publisher *events.KafkaPublisher
		sink      service.EventSink
	)
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Kafka.ClientID,
			WriteTimeout: cfg.Kafka.WriteTimeout(),
		})
		relay = worker.NewEventRelay(publisher, cfg.Kafka.BufferSize, logger.Named("event_relay"), metrics)
		sink = relay
		go relay.Run(context.Background())
		logger.Info("ticket events relayed to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	service.NewNotificationService(dispatcher, logger.Named("events"), sink).RegisterHandlers()

	var statsCache cache.StatsCache = cache.NopStatsCache{}
	if redis.Enabled() {
		statsCache = cache.NewRedisStatsCache(redis.Client, cfg.Redis.StatsTTL())
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repos.tickets,
		CommentRepo: repos.comments,
		HistoryRepo: repos.history,
		UserRepo:    repos.users,
		StatsCache:  statsCache,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger.Named("tickets"),
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:    repos.tickets,
		UserRepo:      repos.users,
		TicketService: ticketService,
		Logger:        logger.Named("assignment"),
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:   repos.users,
		TicketRepo: repos.tickets,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger.Named("users"),
	})
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo: repos.users,
		Logger:   logger.Named("auth"),
	})

	if cfg.Auth.AdminEmail != "" {
		if _, _, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.users)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, userService),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	if relay != nil {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		if err := relay.Stop(stopCtx); err != nil {
			logger.Warn("event relay did not drain", zap.Error(err))
		}
		stop()
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("close kafka writer", zap.Error(err))
		}
	}
}

// buildRepositories selects PostgreSQL when a pool is configured and the in-memory store
// otherwise.
func buildRepositories(pg *persistence.Postgres) repositories {
	if pg.Enabled() {
		return repositories{
			tickets:  repository.NewTicketRepository(pg.Pool),
			comments: repository.NewCommentRepository(pg.Pool),
			history:  repository.NewTicketHistoryRepository(pg.Pool),
			users:    repository.NewUserRepository(pg.Pool),
		}
	}
	store := repository.NewMemoryStore()
	return repositories{
		tickets:  store.Tickets(),
		comments: store.Comments(),
		history:  store.History(),
		users:    store.Users(),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
