package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	appControllers "github.com/yigit/registrar/internal/app/controllers"
	appImports "github.com/yigit/registrar/internal/app/imports"
	appJobs "github.com/yigit/registrar/internal/app/jobs"
	appMigrations "github.com/yigit/registrar/internal/app/migrations"
	appNotifications "github.com/yigit/registrar/internal/app/notifications"
	appRepos "github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/app/repositories/inmem"
	appRoutes "github.com/yigit/registrar/internal/app/routes"
	appServices "github.com/yigit/registrar/internal/app/services"
	"github.com/yigit/registrar/internal/config"
	"github.com/yigit/registrar/internal/db"
	appMiddleware "github.com/yigit/registrar/internal/middleware"
	"github.com/yigit/registrar/internal/pkg/email"
	"github.com/yigit/registrar/internal/pkg/filestorage"
	"github.com/yigit/registrar/internal/pkg/logger"
	"github.com/yigit/registrar/internal/pkg/queue"
	"github.com/yigit/registrar/internal/seed"
)

// DefaultConfigPath is where LoadConfigAndSetupLogger looks for the YAML file
var DefaultConfigPath = filepath.Join("configs", "config.yaml")

// Dependencies holds all the application dependencies
type Dependencies struct {
	Config            *config.Config
	Repos             *appRepos.Repositories
	FileStorage       *filestorage.LocalStorage
	Broker            queue.Broker
	Pool              *queue.Pool
	Dispatcher        *appJobs.Dispatcher
	EnrollmentService appServices.EnrollmentService
	CourseImporter    *appImports.CourseImporter
	GradeImporter     *appImports.GradeImporter
	Notifier          *appNotifications.Notifier
	Logger            zerolog.Logger

	dbPool *pgxpool.Pool
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string) (*config.Config, zerolog.Logger, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	level := logger.ParseLevel(cfg.Logging.Level)
	logger.Configure(logger.Config{
		Level:  level,
		Pretty: cfg.Logging.Format == "text",
	})

	lgr := logger.Get()
	lgr.Info().Str("logLevel", string(level)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase connects to Postgres and, when enabled, applies migrations
// and the default reference data.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger) (*pgxpool.Pool, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	if !cfg.Database.AutoMigrate {
		return database.Pool, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := appMigrations.NewMigrator(database.Pool).Up(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	if err := seed.CreateDefaultData(ctx, appRepos.NewDepartmentRepository(database.Pool), lgr); err != nil {
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}

	return database.Pool, nil
}

// setupRepositories picks the repository implementation for the configured driver
func setupRepositories(cfg *config.Config, lgr zerolog.Logger) (*appRepos.Repositories, *pgxpool.Pool, error) {
	if cfg.Database.Driver == "memory" {
		lgr.Warn().Msg("Using in-memory storage; data is lost on exit")
		repos := inmem.NewStore().Repositories()
		if err := seed.CreateDefaultData(context.Background(), repos.Departments, lgr); err != nil {
			return nil, nil, err
		}
		return repos, nil, nil
	}

	dbPool, err := SetupDatabase(cfg, lgr)
	if err != nil {
		return nil, nil, err
	}
	return appRepos.NewRepositories(dbPool), dbPool, nil
}

// setupBroker picks the queue transport for the configured driver
func setupBroker(cfg *config.Config) (queue.Broker, error) {
	if cfg.Queue.Driver == "redis" {
		return queue.NewRedisBroker(queue.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Consumer:  cfg.Redis.Consumer,
		})
	}
	return queue.NewMemoryBroker(cfg.Queue.Buffer), nil
}

func setupSender(cfg *config.Config, lgr zerolog.Logger) appNotifications.Sender {
	smtpConfig := email.SMTPConfig{
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Username,
		Password:  cfg.Mail.Password,
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
		UseTLS:    cfg.Mail.UseTLS,
	}
	if !smtpConfig.Configured() {
		return appNotifications.LogSender{Logger: logger.Component("notifications")}
	}
	return appNotifications.EmailSender{
		Mailer:          email.NewMailer(smtpConfig, lgr),
		RecipientFormat: cfg.Mail.RecipientFormat,
	}
}

// BuildDependencies wires storage, the queue, the pipelines and the services.
func BuildDependencies(cfg *config.Config, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: lgr}

	var err error
	deps.Repos, deps.dbPool, err = setupRepositories(cfg, lgr)
	if err != nil {
		return nil, err
	}

	deps.FileStorage, err = filestorage.NewLocalStorage(cfg.Storage.BasePath)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	deps.Broker, err = setupBroker(cfg)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize queue broker: %w", err)
	}

	deps.Pool, err = queue.NewPool(deps.Broker, deps.Repos.FailedJobs, queue.Options{
		Workers:     cfg.Queue.Workers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffMax:  cfg.Queue.BackoffMax,
		JobTimeout:  cfg.Queue.JobTimeout,
	}, logger.Component("queue"))
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Dispatcher = appJobs.NewDispatcher(deps.Pool, logger.Component("imports"))
	deps.EnrollmentService = appServices.NewEnrollmentService(
		deps.Repos.Sections, deps.Repos.Enrollments, deps.Pool, logger.Component("enrollment"))
	deps.CourseImporter = appImports.NewCourseImporter(
		deps.Repos.Departments, deps.Repos.Courses, deps.FileStorage, logger.Component("imports"))
	deps.GradeImporter = appImports.NewGradeImporter(
		deps.Repos.Sections, deps.Repos.Enrollments, deps.FileStorage, deps.Pool, logger.Component("imports"))
	deps.Notifier = appNotifications.NewNotifier(setupSender(cfg, lgr), logger.Component("notifications"))

	appJobs.Handlers{
		Courses:  deps.CourseImporter,
		Grades:   deps.GradeImporter,
		Notifier: deps.Notifier,
		Logger:   logger.Component("jobs"),
	}.Register(deps.Pool)

	return deps, nil
}

// Close releases the broker and the database pool
func (d *Dependencies) Close() {
	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("Failed to close queue broker")
		}
	}
	if d.dbPool != nil {
		d.dbPool.Close()
	}
}

// SetupRouter creates the gin engine with middleware and routes
func SetupRouter(cfg *config.Config, deps *Dependencies) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), appMiddleware.RequestLogger())
	router.MaxMultipartMemory = cfg.Server.MaxUploadSize

	appRoutes.SetupRouter(router, appRoutes.Controllers{
		Enrollments: appControllers.NewEnrollmentController(deps.EnrollmentService),
		Imports:     appControllers.NewImportController(deps.Dispatcher, deps.FileStorage, cfg.Storage.UploadDir),
		FailedJobs:  appControllers.NewFailedJobController(deps.Repos.FailedJobs),
	})
	return router
}
