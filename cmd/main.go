package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/course-tracker-backend/auth"
	"github.com/vnkhanh/course-tracker-backend/config"
	"github.com/vnkhanh/course-tracker-backend/controllers"
	"github.com/vnkhanh/course-tracker-backend/logger"
	"github.com/vnkhanh/course-tracker-backend/middleware"
	"github.com/vnkhanh/course-tracker-backend/routes"
	"github.com/vnkhanh/course-tracker-backend/services"
	"github.com/vnkhanh/course-tracker-backend/utils"
	"github.com/vnkhanh/course-tracker-backend/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()
	log.Info().Str("env", cfg.App.Env).Msg("Starting course tracker API")

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	rdb := openRedis(cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}

	files, err := openFileStore(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("File storage disabled")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := ws.NewHub()
	notifications := services.NewNotificationService(db, hub, services.NotificationOptions{
		Redis:   rdb,
		Channel: cfg.Redis.Channel,
		TTL:     cfg.Notifications.TTL,
	})
	go notifications.Subscribe(ctx)

	svc := services.New(services.Deps{DB: db, Notifications: notifications, Files: files})
	handler := controllers.NewHandler(svc, db, hub)

	utils.StartCleanupJob(ctx, notifications, cfg.Notifications.CleanupInterval)
	utils.StartHealthLogger(ctx, db, cfg.Database.HealthInterval)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	// Bật CORS
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Auth-Token"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRouter(r, routes.Deps{
		Handler:       handler,
		Verifier:      buildVerifier(cfg),
		Users:         svc.Users,
		Hub:           hub,
		Clock:         time.Now,
		AllowedOrigin: originAllowed(cfg.Server.CORSOrigins),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func buildVerifier(cfg *config.Config) auth.Verifier {
	var chain auth.Chain
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTVerifier(cfg.Auth.JWTSecret, 0))
	}
	if cfg.Auth.GoogleClientID != "" {
		chain = append(chain, auth.NewGoogleVerifier(cfg.Auth.GoogleClientID))
	}
	return chain
}

// openRedis returns nil when redis is not configured or unreachable; the
// service then pushes notifications to local sockets only.
func openRedis(cfg *config.Config, log zerolog.Logger) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, notification fan-out is local only")
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func openFileStore(cfg *config.Config) (services.FileStore, error) {
	if cfg.Storage.Driver == "s3" {
		s3cfg := cfg.Storage.S3
		store, err := utils.NewS3Store(utils.S3Options{
			Endpoint:  s3cfg.Endpoint,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			UseSSL:    s3cfg.UseSSL,
			PublicURL: s3cfg.PublicURL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	sb := cfg.Storage.Supabase
	store, err := utils.NewSupabaseStore(sb.URL, sb.Key, sb.Bucket)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func originAllowed(origins []string) func(string) bool {
	return func(origin string) bool {
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
