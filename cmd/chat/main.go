package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"sudooom.im.chat/internal/auth"
	"sudooom.im.chat/internal/config"
	"sudooom.im.chat/internal/eventbus"
	"sudooom.im.chat/internal/handler"
	"sudooom.im.chat/internal/health"
	"sudooom.im.chat/internal/push"
	"sudooom.im.chat/internal/repository"
	"sudooom.im.chat/internal/repository/sqlite"
	"sudooom.im.chat/internal/router"
	"sudooom.im.chat/internal/service"
	"sudooom.im.chat/internal/subscription"
	"sudooom.im.chat/internal/workerpool"
	"sudooom.im.chat/pkg/jwt"
	"sudooom.im.chat/pkg/snowflake"
)

// stores 选定驱动后的存储实现
type stores struct {
	users    service.UserStore
	groups   service.GroupStore
	messages service.MessageStore
	ping     health.Pinger
	close    func()
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化存储
	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.close()
	logger.Info("Store ready", "driver", cfg.Store.Driver)

	// 连接 Redis（可选）
	var (
		redisClient *redis.Client
		sessions    auth.SessionCache
		readState   service.ReadStateStore
	)
	if cfg.Redis.Host != "" {
		redisClient = connectRedis(cfg.Redis)
		defer redisClient.Close()
		sessions = repository.NewSessionCache(redisClient, cfg.Redis.SessionTTL)
		readState = repository.NewReadStateStore(redisClient)
		logger.Info("Connected to Redis", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	}

	// 事件总线：配置了 NATS 时跨节点广播
	local := eventbus.NewLocalBus(cfg.Subscription.BufferSize)
	var (
		bus eventbus.Bus = local
		nc  *nats.Conn
	)
	if cfg.NATS.URL != "" {
		natsClient, err := eventbus.NewClient(cfg.NATS)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		natsBus := eventbus.NewNATSBus(natsClient.Conn(), local, uuid.NewString())
		if err := natsBus.Start(); err != nil {
			logger.Error("Failed to start NATS event bus", "error", err)
			os.Exit(1)
		}
		defer natsBus.Stop()

		bus = natsBus
		nc = natsClient.Conn()
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// 初始化 worker pool
	pool := workerpool.New(cfg.Workers.Count, cfg.Workers.QueueSize, logger)
	defer pool.Shutdown()

	// 推送通知
	var notifier push.Notifier = push.Noop{}
	if cfg.Push.Endpoint != "" {
		notifier = push.NewHTTPSender(cfg.Push.Endpoint, cfg.Push.APIKey, cfg.Push.Timeout)
	}
	dispatcher := push.NewDispatcher(notifier, pool, cfg.Push.Timeout)

	// 初始化雪花ID生成器
	sfNode, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		logger.Error("Failed to create snowflake node", "error", err)
		os.Exit(1)
	}

	// 初始化 Service
	jwtService := jwt.NewService(cfg.JWT.SecretKey, cfg.JWT.Expire)
	gate := auth.NewGate(jwtService, st.users, sessions)
	authService := service.NewAuthService(st.users, jwtService, pool, gate)
	chatService := service.NewChatService(st.users, st.groups, st.messages, readState, bus, dispatcher)
	paginator := service.NewPaginator(st.messages, cfg.Pagination.MaxPageSize)
	queryService := service.NewQueryService(st.users, st.groups, paginator, readState)
	subServer := subscription.NewServer(gate, st.groups, bus, sfNode, cfg.Subscription.KeepAlive, cfg.CORS.AllowedOrigins)

	// 设置路由
	r := router.SetupRouter(cfg, gate, router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		User:          handler.NewUserHandler(queryService),
		Group:         handler.NewGroupHandler(chatService, queryService),
		Subscriptions: subServer,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Chat server started", "addr", srv.Addr, "mode", cfg.App.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 启动健康检查 HTTP 服务
	checker := health.NewChecker(cfg.App.Name, st.ping, nc, redisClient, subServer.Manager())
	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HealthPort),
		Handler:           checker.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Health check server started", "addr", healthSrv.Addr)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed", "error", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// websocket 连接不受 Shutdown 管理，先主动断开
	subServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}
	_ = healthSrv.Shutdown(shutdownCtx)
	logger.Info("Server stopped")
}

// openStores 按配置选择 PostgreSQL 或 SQLite
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UsePostgres() {
		db, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			users:    repository.NewUserRepository(db),
			groups:   repository.NewGroupRepository(db),
			messages: repository.NewMessageRepository(db),
			ping:     db,
			close:    db.Close,
		}, nil
	}

	db, err := sqlite.Open(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    sqlite.NewUserRepository(db),
		groups:   sqlite.NewGroupRepository(db),
		messages: sqlite.NewMessageRepository(db),
		ping:     health.PingFunc(sqlDB.PingContext),
		close:    func() { _ = sqlite.Close(db) },
	}, nil
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
