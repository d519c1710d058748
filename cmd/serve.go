package cmd

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-phonebook/app/avatar"
	"github.com/vibast-solutions/ms-go-phonebook/app/controller"
	phonebookgrpc "github.com/vibast-solutions/ms-go-phonebook/app/grpc"
	"github.com/vibast-solutions/ms-go-phonebook/app/mail"
	"github.com/vibast-solutions/ms-go-phonebook/app/metrics"
	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/migrations"
	"github.com/vibast-solutions/ms-go-phonebook/app/repository"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/storage"
	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) API and the gRPC identity service of the phonebook.`,
	Run:   runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

type services struct {
	background  *service.BackgroundTasks
	userAuth    service.UserAuthService
	contacts    service.ContactService
	serviceKeys service.ServiceKeyService
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg.Log); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if migrateOnStart {
		if err := migrations.Up(ctx, db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	svc := buildServices(ctx, cfg, db, m)

	grpcServer, grpcErr := startGRPCServer(cfg, svc)
	e := newHTTPServer(cfg, db, svc, m, registry)

	httpErr := make(chan error, 1)
	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logrus.Info("Shutdown signal received")
	case err := <-httpErr:
		logrus.WithError(err).Error("HTTP server failed")
	case err := <-grpcErr:
		logrus.WithError(err).Error("gRPC server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()
	if err := svc.background.Wait(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Background tasks did not finish before shutdown")
	}
	logrus.Info("Servers stopped")
}

func buildServices(ctx context.Context, cfg *config.Config, db *sql.DB, m *metrics.Metrics) *services {
	background := service.NewBackgroundTasks()
	opts := []service.UserAuthServiceOption{
		service.WithMetrics(m),
		service.WithAsyncRunner(background.Run),
	}

	if cfg.Mail.Enabled() {
		sender, err := mail.NewSMTPSender(cfg.Mail)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to configure SMTP sender")
		}
		opts = append(opts, service.WithMailSender(sender))
	} else {
		logrus.Warn("MAIL_SERVER is not set; confirmation mails are only logged")
	}

	if cfg.Avatar.Gravatar {
		opts = append(opts, service.WithAvatarLookup(avatar.NewGravatar(cfg.Avatar.Timeout, avatar.WithVerify(cfg.Avatar.Verify))))
	}

	if cfg.Storage.Enabled() {
		store, err := storage.NewS3ImageStore(ctx, cfg.Storage)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to configure object storage")
		}
		opts = append(opts, service.WithImageStore(store))
	} else {
		logrus.Warn("S3_BUCKET is not set; avatar uploads are disabled")
	}

	return &services{
		background:  background,
		userAuth:    service.NewUserAuthService(repository.NewUserRepository(db), cfg, opts...),
		contacts:    service.NewContactService(repository.NewContactRepository(db), cfg.Contacts.DefaultPhoneRegion),
		serviceKeys: service.NewServiceKeyService(repository.NewServiceKeyRepository(db)),
	}
}

func newHTTPServer(cfg *config.Config, db *sql.DB, svc *services, m *metrics.Metrics, registry *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: func() string {
			return ulid.MustNew(ulid.Now(), rand.Reader).String()
		},
	}))
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.HeaderAPIKey},
		AllowCredentials: true,
	}))
	e.Use(middleware.Metrics(m))

	registerRoutes(e, cfg, db, svc, registry)
	return e
}

func registerRoutes(e *echo.Echo, cfg *config.Config, db *sql.DB, svc *services, registry *prometheus.Registry) {
	authController := controller.NewUserAuthController(svc.userAuth)
	userController := controller.NewUserController(svc.userAuth)
	contactController := controller.NewContactController(svc.contacts, cfg.Contacts.DefaultPhoneRegion)
	identityController := controller.NewIdentityController(svc.userAuth)
	healthController := controller.NewHealthController(db)

	authMiddleware := middleware.NewAuthMiddleware(svc.userAuth)
	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(svc.serviceKeys)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	e.GET("/healthz", healthController.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := e.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", authController.Signup, rateLimiter)
	auth.POST("/login", authController.Login)
	auth.GET("/refresh_token", authController.RefreshToken)
	auth.GET("/confirmed_email/:token", authController.ConfirmedEmail)
	auth.POST("/request_email", authController.RequestEmail)
	auth.POST("/logout", authController.Logout, authMiddleware.RequireAuth)

	users := api.Group("/users", authMiddleware.RequireAuth)
	users.GET("/me", userController.Me)
	users.PATCH("/avatar", userController.UpdateAvatar)

	contacts := api.Group("/contacts", authMiddleware.RequireAuth)
	contacts.GET("", contactController.List)
	contacts.GET("/search", contactController.Search)
	contacts.GET("/search/birthdays", contactController.Birthdays)
	contacts.GET("/:id", contactController.Get)
	contacts.POST("", contactController.Create, rateLimiter)
	contacts.PUT("/:id", contactController.Update, rateLimiter)
	contacts.PATCH("/:id/favorite", contactController.SetFavorite, rateLimiter)
	contacts.DELETE("/:id", contactController.Delete, rateLimiter)

	internal := e.Group("/internal", apiKeyMiddleware.RequireAPIKey)
	internal.POST("/identity/resolve", identityController.ResolveUser)
}

func startGRPCServer(cfg *config.Config, svc *services) (*grpc.Server, <-chan error) {
	errCh := make(chan error, 1)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(phonebookgrpc.APIKeyUnaryInterceptor(svc.serviceKeys)),
		grpc.StreamInterceptor(phonebookgrpc.APIKeyStreamInterceptor(svc.serviceKeys)),
	)
	phonebookgrpc.RegisterIdentityServer(grpcServer, phonebookgrpc.NewIdentityService(svc.userAuth))

	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	return grpcServer, errCh
}
