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

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	personrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/person"
	treerepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/tree"
	treeaccessrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/treeaccess"
	updaterequestrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/updaterequest"
	userrepo "github.com/tester620/server-ancestropedia-v1/internal/repositories/user"
	"github.com/tester620/server-ancestropedia-v1/config"
	"github.com/tester620/server-ancestropedia-v1/pkg/builder"
	"github.com/tester620/server-ancestropedia-v1/pkg/cache"
	"github.com/tester620/server-ancestropedia-v1/pkg/consistency"
	"github.com/tester620/server-ancestropedia-v1/pkg/database"
	"github.com/tester620/server-ancestropedia-v1/pkg/events"
	"github.com/tester620/server-ancestropedia-v1/pkg/graph"
	"github.com/tester620/server-ancestropedia-v1/pkg/kafka"
	"github.com/tester620/server-ancestropedia-v1/pkg/ledger"
	"github.com/tester620/server-ancestropedia-v1/pkg/matching"
	"github.com/tester620/server-ancestropedia-v1/pkg/middleware"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/access"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/health"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/match"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/person"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/tree"
	"github.com/tester620/server-ancestropedia-v1/pkg/routes/user"
	"github.com/tester620/server-ancestropedia-v1/pkg/storage"
	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
	"github.com/tester620/server-ancestropedia-v1/pkg/traversal"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := tracing.InitProvider(ctx, cfg.AppName, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shut down trace provider")
			}
		}()
	}

	// Postgres
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlxDB.Close()

	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	if err := runMigrations(cfg, logger, sqlxDB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis
	cacheClient, err := cache.NewClient(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cacheClient.Close()

	// Kafka producer (optional)
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}

	// Graph mirror (optional)
	var mirror events.Mirror
	if cfg.GraphDBEnabled {
		graphClient, err := graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to graph database: %w", err)
		}
		defer graphClient.Close(context.Background())
		mirror = graph.NewMirrorService(graphClient, logger)
	}

	// Repositories
	people := personrepo.NewRepository(db, logger)
	users := userrepo.NewRepository(db, logger)
	treeAccess := treeaccessrepo.NewRepository(db, logger)
	trees := treerepo.NewRepository(db, logger)
	updateRequests := updaterequestrepo.NewRepository(db, logger)

	// Domain services
	txManager := database.NewTxManager(db, logger)
	notifier := events.NewNotifier(events.NewEmitter(producer, logger), mirror, logger)
	linker := consistency.NewLinker(people, logger)
	materializer := traversal.NewMaterializer(people, cacheClient, logger)
	accessLedger := ledger.NewLedger(treeAccess, users, txManager, logger)
	matcher := matching.NewService(people, logger)

	var uploader storage.Uploader
	var httpUploader *storage.HTTPUploader
	if cfg.StorageUploadURL != "" {
		httpUploader = storage.NewHTTPUploader(storage.Config{
			UploadURL:  cfg.StorageUploadURL,
			PrivateKey: cfg.StoragePrivateKey,
			Folder:     cfg.StorageFolder,
		}, logger)
		uploader = httpUploader
	}

	engine := builder.NewEngine(people, linker, txManager, materializer, notifier, uploader, logger)

	// Dependency injection container
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}
	if err := errors.Join(
		ectoinject.RegisterInstance[ectologger.Logger](container, logger),
		ectoinject.RegisterInstance[database.DB](container, db),
		ectoinject.RegisterInstance[*personrepo.Repository](container, people),
		ectoinject.RegisterInstance[*userrepo.Repository](container, users),
		ectoinject.RegisterInstance[*treeaccessrepo.Repository](container, treeAccess),
		ectoinject.RegisterInstance[*treerepo.Repository](container, trees),
		ectoinject.RegisterInstance[*updaterequestrepo.Repository](container, updateRequests),
		ectoinject.RegisterInstance[*builder.Engine](container, engine),
		ectoinject.RegisterInstance[*traversal.Materializer](container, materializer),
		ectoinject.RegisterInstance[*ledger.Ledger](container, accessLedger),
		ectoinject.RegisterInstance[*matching.Service](container, matcher),
		ectoinject.RegisterInstance[*events.Notifier](container, notifier),
	); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}
	if httpUploader != nil {
		if err := ectoinject.RegisterInstance[*storage.HTTPUploader](container, httpUploader); err != nil {
			return fmt.Errorf("failed to register uploader: %w", err)
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	if cfg.OTLPEndpoint != "" {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(db, cacheClient, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	user.Register(api.Group("/users"))
	person.Register(api.Group("/persons"))
	person.RegisterUpdateRequests(api.Group("/update-requests"))
	tree.Register(api.Group("/trees"))
	access.Register(api.Group("/access"))
	match.Register(api.Group("/match"))

	checker.SetReady(true)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("addr", addr).Infof("Starting %s on %s", cfg.AppName, addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}

func newZapLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.PrettyLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runMigrations(cfg config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	service := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return service.Migrate(cfg.DatabaseName, driver)
}
