package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-market/internal/cache"
	"github.com/weiawesome/wes-market/internal/config"
	"github.com/weiawesome/wes-market/internal/consumer"
	"github.com/weiawesome/wes-market/internal/domain"
	"github.com/weiawesome/wes-market/internal/handler"
	"github.com/weiawesome/wes-market/internal/processor"
	"github.com/weiawesome/wes-market/internal/reconciler"
	"github.com/weiawesome/wes-market/internal/repository"
	"github.com/weiawesome/wes-market/internal/service"
	"github.com/weiawesome/wes-market/internal/store"
	"github.com/weiawesome/wes-market/pkg/database"
	"github.com/weiawesome/wes-market/pkg/idgen"
	"github.com/weiawesome/wes-market/pkg/jwt"
	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/middleware"
	"github.com/weiawesome/wes-market/pkg/pubsub"
	"github.com/weiawesome/wes-market/pkg/storage"
)

const serviceName = "wes-market"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: serviceName,
	})
	logger := pkglog.L()

	cfg.Watch(func(next *config.Config) {
		pkglog.SetLevel(next.Log.Level)
	})

	// 3. Init DB and migrate every model
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get underlying sql.DB")
	}
	defer sqlDB.Close()

	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Init Redis client shared by cache, follower counters and pubsub
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.Address).Msg("failed to connect to redis")
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	// 5. Init event bus
	var ps pubsub.PubSub
	if cfg.PubSub.Driver == pubsub.DriverRedis || cfg.PubSub.Driver == "" {
		ps = pubsub.NewRedisPubSubWithClient(redisClient)
	} else {
		ps, err = pubsub.NewPubSub(cfg.PubSub)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
		}
	}
	if ps == nil {
		logger.Warn().Msg("pubsub disabled; domain events are not published")
	}

	// 6. Init image storage
	imageStore, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to create storage")
	}

	// 7. Init ID generator and token manager
	ids, err := idgen.NewSnowflake(cfg.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}

	tokens, err := jwt.NewManager(cfg.Auth)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	// 8. Create repos and services
	users := repository.NewGormUserRepository(db)
	listings := repository.NewGormListingRepository(db)
	transactions := repository.NewGormTransactionRepository(db)
	ratings := repository.NewGormRatingRepository(db)
	follows := repository.NewGormFollowRepository(db)
	likes := repository.NewGormLikeRepository(db)

	followStore := store.NewRedisFollowStore(redisClient)
	images := processor.NewListingImageProcessor(imageStore, cfg.Image)

	reputationSvc := service.NewReputationService(service.ReputationDeps{
		Users:          users,
		Ratings:        ratings,
		Follows:        follows,
		Likes:          likes,
		Listings:       listings,
		Transactions:   transactions,
		RatingCache:    cache.NewRedisRatingCache(redisClient, cfg.Cache.Prefix),
		RatingCacheTTL: cfg.Cache.RatingTTL,
		FollowStore:    followStore,
		Publisher:      ps,
	})
	services := handler.Services{
		Listings:     service.NewListingService(listings, users, ids, imageStore, images, ps),
		Transactions: service.NewTransactionService(transactions, listings, users, ps),
		Reputation:   reputationSvc,
		Search:       service.NewSearchService(listings),
		Accounts:     service.NewAccountService(users, tokens),
	}

	// 9. Start event consumer and follower count reconciler
	var eventConsumer *consumer.EventConsumer
	if ps != nil {
		ec := consumer.NewEventConsumer(ps, reputationSvc, consumer.DefaultPatterns...)
		if err := ec.Start(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to start event consumer; cached counters rely on the reconciler")
		} else {
			eventConsumer = ec
		}
	}

	rec := reconciler.New(followStore, follows, cfg.Reconciler)
	rec.Start(ctx)
	logger.Info().Dur("interval", cfg.Reconciler.Interval).Int("top_n", cfg.Reconciler.TopN).Msg("reconciler started")

	// 10. Setup Gin router + HTTP server
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := middleware.NewMetrics(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	corsConfig := cors.DefaultConfig()
	if allowsAnyOrigin(cfg.Server.CORSOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	corsConfig.AddAllowHeaders(middleware.AuthHeaderKey)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig))
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(metrics.Handler())

	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	if cfg.Storage.Driver != storage.DriverS3 {
		r.Static(cfg.Storage.Local.URLPrefix, cfg.Storage.Local.BasePath)
	}

	httpHandler := handler.NewHandler(
		services,
		imageStore,
		middleware.NewAuthMiddleware(tokens),
		middleware.NewRateLimiter(cfg.RateLimit),
		cfg.Handler,
	)
	httpHandler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Msg(serviceName + " starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		// Stop accepting requests first so no new events are produced.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
		}

		cancel()
		if eventConsumer != nil {
			eventConsumer.Wait()
		}
		rec.Stop()
		<-rec.Done()

		if ps != nil {
			if err := ps.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing pubsub")
			}
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg(serviceName + " stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
