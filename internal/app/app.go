package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/konecta/erp/internal/authsvc"
	"github.com/konecta/erp/internal/config"
	"github.com/konecta/erp/internal/database"
	"github.com/konecta/erp/internal/directory"
	"github.com/konecta/erp/internal/eventbus"
	"github.com/konecta/erp/internal/events"
	"github.com/konecta/erp/internal/finance"
	"github.com/konecta/erp/internal/handler"
	"github.com/konecta/erp/internal/hr"
	"github.com/konecta/erp/internal/keys"
	"github.com/konecta/erp/internal/logger"
	"github.com/konecta/erp/internal/metrics"
	"github.com/konecta/erp/internal/middleware"
	"github.com/konecta/erp/internal/token"
	"github.com/konecta/erp/internal/usermgmt"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, service string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, service)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するサービスモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w, string(cmd))
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("exchange", cfg.Exchange),
	)

	switch cmd {
	case CommandAuth:
		return runAuth(cfg)
	case CommandHR:
		return runHR(cfg)
	case CommandUserMgmt:
		return runUserMgmt(cfg)
	case CommandFinance:
		return runFinance(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runAuth(cfg)
	}
}

// runAuth は認証サービスモードで起動する。
// 署名鍵ストア・トークンサービス・従業員イベントコンシューマをワイヤリングし、
// ログインAPIとJWKSエンドポイントを提供するHTTPサーバーを起動する。
// SIGHUPを受信すると鍵設定ファイルを再読み込みする。
func runAuth(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 署名鍵ストアの初期化
	store, err := loadKeyStore(cfg)
	if err != nil {
		return err
	}

	// 3. トークンサービスの初期化
	tokenService := token.NewService(store, token.Config{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Lifetime: cfg.TokenLifetime,
	}, slog.Default())

	// 4. メトリクスコレクタの初期化
	collector := metrics.NewCollector()

	// 5. イベントバスへの接続
	bus, err := eventbus.NewAMQPBus(cfg.AMQPURL, cfg.Exchange, slog.Default(), collector)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}
	defer bus.Close()

	slog.Info("event bus connection established")

	// 6. リポジトリとドメインサービスの初期化
	userRepo := authsvc.NewPostgresUserRepository(db)
	emailSender := authsvc.NewLogEmailSender(slog.Default())
	profileClient := directory.NewClient(
		cfg.DirectoryBaseURL, cfg.ServiceToken, cfg.DirectoryTimeout, slog.Default(),
	)
	loginService := authsvc.NewLoginService(
		userRepo, profileClient, tokenService, collector, slog.Default(),
	)

	// 7. 従業員ライフサイクルイベントの購読
	consumer := authsvc.NewEmployeeEventsConsumer(userRepo, bus, emailSender, slog.Default())
	dispatcher := eventbus.NewDispatcher(slog.Default())
	consumer.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, events.AuthEmployeeEventsQueue, dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	// 8. ルーターの構築
	rateLimiter := middleware.NewLoginRateLimiter(cfg.LoginRateLimitPerMin)
	defer rateLimiter.Stop()

	router := handler.NewAuthRouter(&handler.AuthRouterDeps{
		Login:       loginService,
		JWKS:        store,
		RateLimiter: rateLimiter,
		Collector:   collector,
		Logger:      slog.Default(),
	})

	// 9. SIGHUPによる鍵の再読み込み
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)

	go func() {
		for range reload {
			cfgs, err := keys.LoadConfigFile(cfg.JWTKeysFile)
			if err != nil {
				slog.Error("key reload failed", slog.String("error", err.Error()))
				continue
			}
			if err := store.Reload(cfgs); err != nil {
				slog.Error("key reload failed", slog.String("error", err.Error()))
				continue
			}
			slog.Info("signing keys reloaded", slog.String("file", cfg.JWTKeysFile))
		}
	}()

	return serveHTTP(router, cfg.ServerPort)
}

// runHR はHRサービスモードで起動する。
// 従業員ライフサイクルAPIとユーザープロビジョニングイベントの購読を提供する。
func runHR(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. トークン検証器の初期化（鍵ファイルは認証サービスと共有する）
	validator, err := buildTokenValidator(cfg)
	if err != nil {
		return err
	}

	// 3. メトリクスコレクタの初期化
	collector := metrics.NewCollector()

	// 4. イベントバスへの接続
	bus, err := eventbus.NewAMQPBus(cfg.AMQPURL, cfg.Exchange, slog.Default(), collector)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}
	defer bus.Close()

	slog.Info("event bus connection established")

	// 5. リポジトリとドメインサービスの初期化
	employeeRepo := hr.NewPostgresEmployeeRepository(db)
	lifecycle := hr.NewLifecycleService(employeeRepo, bus, slog.Default())

	// 6. ユーザープロビジョニングイベントの購読
	consumer := hr.NewUserProvisionedConsumer(employeeRepo, bus, slog.Default())
	dispatcher := eventbus.NewDispatcher(slog.Default())
	consumer.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, events.HRUserProvisionedQueue, dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	// 7. ルーターの構築
	router := handler.NewHRRouter(&handler.HRRouterDeps{
		Lifecycle: lifecycle,
		Validator: validator,
		Collector: collector,
		Logger:    slog.Default(),
	})

	return serveHTTP(router, cfg.ServerPort)
}

// runUserMgmt はユーザー管理サービスモードで起動する。
// 認可プロフィールAPIと認証イベントの購読を提供する。
func runUserMgmt(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスコレクタの初期化
	collector := metrics.NewCollector()

	// 3. イベントバスへの接続
	bus, err := eventbus.NewAMQPBus(cfg.AMQPURL, cfg.Exchange, slog.Default(), collector)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}
	defer bus.Close()

	slog.Info("event bus connection established")

	// 4. リポジトリとドメインサービスの初期化
	directoryRepo := usermgmt.NewPostgresDirectoryUserRepository(db)
	profileService := usermgmt.NewProfileService(directoryRepo, slog.Default())

	// 5. 認証イベントの購読
	consumer := usermgmt.NewAuthEventsConsumer(directoryRepo, slog.Default())
	dispatcher := eventbus.NewDispatcher(slog.Default())
	consumer.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, events.UserMgmtAuthEventsQueue, dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	// 6. ルーターの構築
	router := handler.NewUserMgmtRouter(&handler.UserMgmtRouterDeps{
		Profiles:     profileService,
		ServiceToken: cfg.ServiceToken,
		Collector:    collector,
		Logger:       slog.Default(),
	})

	return serveHTTP(router, cfg.ServerPort)
}

// runFinance は財務サービスモードで起動する。
// 報酬参照APIと報酬イベントの購読を提供する。
func runFinance(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. トークン検証器の初期化（鍵ファイルは認証サービスと共有する）
	validator, err := buildTokenValidator(cfg)
	if err != nil {
		return err
	}

	// 3. メトリクスコレクタの初期化
	collector := metrics.NewCollector()

	// 4. イベントバスへの接続
	bus, err := eventbus.NewAMQPBus(cfg.AMQPURL, cfg.Exchange, slog.Default(), collector)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}
	defer bus.Close()

	slog.Info("event bus connection established")

	// 5. リポジトリの初期化
	compensationRepo := finance.NewPostgresCompensationRepository(db)

	// 6. 報酬イベントの購読
	consumer := finance.NewCompensationEventsConsumer(compensationRepo, slog.Default())
	dispatcher := eventbus.NewDispatcher(slog.Default())
	consumer.Register(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, events.FinanceCompensationQueue, dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	// 7. ルーターの構築
	router := handler.NewFinanceRouter(&handler.FinanceRouterDeps{
		Accounts:  compensationRepo,
		Validator: validator,
		Collector: collector,
		Logger:    slog.Default(),
	})

	return serveHTTP(router, cfg.ServerPort)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// loadKeyStore は鍵設定ファイルから署名鍵ストアを構築する。
func loadKeyStore(cfg *config.Config) (*keys.Store, error) {
	if cfg.JWTKeysFile == "" {
		return nil, fmt.Errorf("JWT_KEYS_FILE is required")
	}

	cfgs, err := keys.LoadConfigFile(cfg.JWTKeysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key config: %w", err)
	}

	store, err := keys.NewStore(cfgs)
	if err != nil {
		return nil, fmt.Errorf("failed to build key store: %w", err)
	}

	return store, nil
}

// buildTokenValidator はBearer認証用のトークン検証器を構築する。
func buildTokenValidator(cfg *config.Config) (middleware.TokenValidator, error) {
	store, err := loadKeyStore(cfg)
	if err != nil {
		return nil, err
	}

	return token.NewService(store, token.Config{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Lifetime: cfg.TokenLifetime,
	}, slog.Default()), nil
}

// serveHTTP はHTTPサーバーを起動し、グレースフルシャットダウンを行う。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func serveHTTP(router http.Handler, port string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
