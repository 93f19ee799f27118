package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	cacheadapter "github.com/quickmart/quickmart-auth/internal/adapter/cache"
	"github.com/quickmart/quickmart-auth/internal/bootstrap"
	"github.com/quickmart/quickmart-auth/internal/config"
	httptransport "github.com/quickmart/quickmart-auth/internal/http"
	"github.com/quickmart/quickmart-auth/internal/http/handler"
	httpmiddleware "github.com/quickmart/quickmart-auth/internal/http/middleware"
	"github.com/quickmart/quickmart-auth/internal/jwt"
	"github.com/quickmart/quickmart-auth/internal/notifier"
	"github.com/quickmart/quickmart-auth/internal/repository"
	"github.com/quickmart/quickmart-auth/internal/server"
	"github.com/quickmart/quickmart-auth/internal/service"
	"github.com/quickmart/quickmart-auth/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newRoleRepository,
			newResetTokenRepository,
			newThrottle,
			newTokenGenerator,
			newNotifier,
			newResetTokenService,
			newUserService,
			handler.NewUserHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSeedData, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newRoleRepository(pool *pgxpool.Pool) repository.RoleRepository {
	return repository.NewPostgresRoleRepo(pool)
}

// newResetTokenRepository prefers Redis when configured. Redis keys expire on
// their own and GETDEL gives single-use consumption without a table to sweep.
func newResetTokenRepository(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool) (repository.ResetTokenRepository, error) {
	if cfg.RedisAddr == "" {
		return repository.NewPostgresResetTokenRepo(pool), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return cacheadapter.NewRedisResetTokenStore(client), nil
}

func newThrottle(cfg config.Config) *httpmiddleware.Throttle {
	return httpmiddleware.NewThrottle(cfg.RateLimitRPM)
}

func newTokenGenerator(cfg config.Config) (*jwt.Generator, error) {
	return jwt.NewGenerator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenTTL)
}

func newNotifier(cfg config.Config, logger *zap.Logger) notifier.Notifier {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, reset mail will be logged instead of sent")
		return &notifier.LogNotifier{Logger: logger}
	}
	return notifier.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPSender, cfg.SMTPPassword)
}

func newResetTokenService(repo repository.ResetTokenRepository, node *snowflake.Node, cfg config.Config) *service.ResetTokenService {
	return service.NewResetTokenService(repo, node, cfg.ResetTokenTTL)
}

func newUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	resets *service.ResetTokenService,
	tokens *jwt.Generator,
	mail notifier.Notifier,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *service.UserService {
	return service.NewUserService(users, roles, resets, tokens, mail, node, cfg.DefaultRole, cfg.ResetLinkBaseURL, logger)
}

func newAuthMiddleware(tokens *jwt.Generator) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Tokens: tokens}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
