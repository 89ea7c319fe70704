package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/memory/v2"
	"github.com/gofiber/storage/redis/v3"
	"github.com/nobilishq/nobilis-server/internal/audit"
	"github.com/nobilishq/nobilis-server/internal/auth"
	"github.com/nobilishq/nobilis-server/internal/billing"
	"github.com/nobilishq/nobilis-server/internal/common"
	"github.com/nobilishq/nobilis-server/internal/config"
	"github.com/nobilishq/nobilis-server/internal/handlers/api"
	"github.com/nobilishq/nobilis-server/internal/mail"
	"github.com/nobilishq/nobilis-server/internal/middlewares"
	"github.com/nobilishq/nobilis-server/internal/moderation"
	"github.com/nobilishq/nobilis-server/internal/notifications"
	"github.com/nobilishq/nobilis-server/internal/render"
	"github.com/nobilishq/nobilis-server/internal/store"
	"github.com/nobilishq/nobilis-server/internal/users"
	"github.com/nobilishq/nobilis-server/internal/waitinglist"
	"github.com/nobilishq/nobilis-server/model"
	"github.com/nobilishq/nobilis-server/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "nobilis-server - membership and billing backend"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if len(dbConfig.ReplicaDsns) > 0 {
		var replicas []gorm.Dialector
		for _, dsn := range dbConfig.ReplicaDsns {
			replicas = append(replicas, mysql.Open(dsn))
		}
		resolver := dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})
		if dbConfig.MaxIdleConns > 0 {
			resolver = resolver.SetMaxIdleConns(dbConfig.MaxIdleConns)
		}
		if dbConfig.MaxOpenConns > 0 {
			resolver = resolver.SetMaxOpenConns(dbConfig.MaxOpenConns)
		}
		if dbConfig.ConnMaxIdleTime > 0 {
			resolver = resolver.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			resolver = resolver.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
		if err := db.Use(resolver); err != nil {
			slog.Error("Failed to register read replicas", "error", err)
			os.Exit(1)
		}
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	switch mailCfg.Backend {
	case "smtp":
		sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
			Host:     mailCfg.SMTP.Host,
			Port:     mailCfg.SMTP.Port,
			Username: mailCfg.SMTP.Username,
			Password: mailCfg.SMTP.Password,
			TLS:      mailCfg.SMTP.TLS,
			CertFile: mailCfg.SMTP.CertFile,
			KeyFile:  mailCfg.SMTP.KeyFile,
			CAFile:   mailCfg.SMTP.CAFile,
		}, mailCfg.From)
		if err != nil {
			log.Fatalf("Could not initialize SMTP mail sender: %v", err)
		}
		return sender
	case "log":
		return &mail.LogMailSender{}
	case "":
		log.Fatal("Missing mail sender backend")
	}
	log.Fatalf("Unsupported mail sender backend %s", mailCfg.Backend)
	return nil
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func setupAPIRoutes(
	router fiber.Router,
	limiterStorage fiber.Storage,
	tokenService *auth.TokenService,
	userService *users.UserService,
	admissionService *waitinglist.AdmissionService,
	billingService *billing.SubscriptionService,
	webhookProcessor *billing.WebhookProcessor,
	notificationService *notifications.NotificationService,
	teamService *moderation.TeamService,
	hub *notifications.Hub,
	mailer *mail.Mailer) {

	// handlers
	var (
		applicantHandler    = api.NewApplicantHandler(admissionService)
		authHandler         = api.NewAuthHandler(userService, tokenService, mailer)
		profileHandler      = api.NewProfileHandler(userService, billingService)
		subscriptionHandler = api.NewSubscriptionHandler(billingService, userService)
		webhookHandler      = api.NewWebhookHandler(webhookProcessor)
		notificationHandler = api.NewNotificationHandler(notificationService)
		teamHandler         = api.NewTeamHandler(teamService)
		roleHandler         = api.NewRoleHandler(userService)
		wsHandler           = api.NewWSHandler(hub, notificationService, tokenService)
	)

	submitLimiter := limiter.New(limiter.Config{
		Max:        params.SubmitRateLimit,
		Expiration: params.SubmitRateLimitWindow,
		Storage:    limiterStorage,
	})

	v1 := router.Group("/api/v1")

	// public routes
	v1.Post("/waiting-list", submitLimiter, applicantHandler.PostSubmit)
	v1.Get("/waiting-list/check", submitLimiter, applicantHandler.GetCheckExisting)
	v1.Post("/auth/login", authHandler.PostLogin)
	v1.Post("/auth/refresh", authHandler.PostRefresh)
	v1.Post("/auth/set-password", authHandler.PostSetPassword)
	v1.Post("/auth/forgot-password", authHandler.PostForgotPassword)
	v1.Post("/auth/reset-password", authHandler.PostResetPassword)
	v1.Get("/plans", subscriptionHandler.GetPlans)
	v1.Post("/webhooks/stripe", webhookHandler.PostStripeWebhook)
	v1.Post("/invitations/accept", teamHandler.PostAcceptInvitation)

	// websocket handshake carries the token in the query string
	v1.Get("/ws/notifications", wsHandler.Upgrade, wsHandler.Handler())

	// authenticated routes
	v1.Use(middlewares.Authenticate(tokenService))
	v1.Get("/auth/me", authHandler.GetMe)
	v1.Post("/auth/change-password", authHandler.PostChangePassword)
	v1.Get("/profile", profileHandler.GetProfile)
	v1.Patch("/profile", profileHandler.PatchProfile)
	v1.Get("/subscriptions", subscriptionHandler.GetSubscriptions)
	v1.Post("/subscriptions", subscriptionHandler.PostSubscribe)
	v1.Post("/subscriptions/cancel", subscriptionHandler.PostCancel)
	v1.Get("/notifications", notificationHandler.GetNotifications)
	v1.Get("/notifications/unread-count", notificationHandler.GetUnreadCount)
	v1.Post("/notifications/:id/read", notificationHandler.PostMarkRead)
	v1.Post("/notifications/read-all", notificationHandler.PostMarkAllRead)

	// admin routes
	v1.Use(middlewares.RequireAdmin())
	v1.Get("/applicants", applicantHandler.GetApplicants)
	v1.Get("/applicants/:id", applicantHandler.GetApplicant)
	v1.Post("/applicants/:id/approve", applicantHandler.PostApprove)
	v1.Post("/applicants/:id/reject", applicantHandler.PostReject)
	v1.Get("/rejection-reasons", applicantHandler.GetReasons)
	v1.Get("/roles", roleHandler.GetRoles)
	v1.Post("/roles", roleHandler.PostRole)
	v1.Patch("/roles/:id", roleHandler.PatchRole)
	v1.Delete("/roles/:id", roleHandler.DeleteRole)
	v1.Get("/teams", teamHandler.GetTeams)
	v1.Post("/teams", teamHandler.PostTeam)
	v1.Get("/teams/:id", teamHandler.GetTeam)
	v1.Patch("/teams/:id", teamHandler.PatchTeam)
	v1.Delete("/teams/:id", teamHandler.DeleteTeam)
	v1.Get("/teams/:id/members", teamHandler.GetMembers)
	v1.Post("/teams/:id/members", teamHandler.PostMember)
	v1.Delete("/teams/:id/members/:userId", teamHandler.DeleteMember)
	v1.Get("/invitations", teamHandler.GetInvitations)
	v1.Post("/invitations", teamHandler.PostInvitation)
}

func run(ctx *cli.Context) error {
	config, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(config.Debug || ctx.IsSet(debugFlag.Name))

	globalVars := map[string]interface{}{
		"siteName": config.SiteName,
		"baseURL":  config.BaseURL,
	}
	if err := render.Initialize(globalVars, config.TemplateDir); err != nil {
		slog.Error("Could not initialize mail templates", "error", err)
		return err
	}

	mailSender := mustInitMailSender(config.Mail)
	mailer := mail.NewMailer(mailSender, config.SiteName, config.FrontendURL)
	db := mustInitDatabase(config.MySQL)
	redisStorage := mustInitRedisStorage(config.Redis)
	rdb := redisStorage.Conn()
	cacheStorage := store.NewRedisStorage(rdb)

	// repositories
	var (
		userRepo         = users.NewUserRepository(db)
		profileRepo      = users.NewProfileRepository(db)
		roleRepo         = users.NewRoleRepository(db)
		tokenRepo        = users.NewActivationTokenRepository(db)
		applicantRepo    = waitinglist.NewApplicantRepository(db)
		reasonRepo       = waitinglist.NewReasonRepository(db)
		planRepo         = billing.NewPlanRepository(db)
		subscriptionRepo = billing.NewSubscriptionRepository(db)
		notificationRepo = notifications.NewNotificationRepository(db)
		teamRepo         = moderation.NewTeamRepository(db)
		membershipRepo   = moderation.NewMembershipRepository(db)
		invitationRepo   = moderation.NewInvitationRepository(db)
		modProfileRepo   = moderation.NewModeratorProfileRepository(db)
	)
	audit.Initialize(audit.NewAuditEventRepository(db))

	// redis-backed stores
	var (
		resetStore        = store.New[users.ResetToken](cacheStorage, params.ResetTokenKeyPrefix)
		webhookEventStore = store.New[time.Time](cacheStorage, params.WebhookEventKeyPrefix)
	)

	// services
	var (
		tokenService        = auth.NewTokenService(config.MasterKey)
		userService         = users.NewUserService(db, userRepo, profileRepo, roleRepo, tokenRepo, resetStore)
		notificationService = notifications.NewNotificationService(notificationRepo, rdb)
		stripeGateway       = billing.NewStripeGateway(config.Stripe.APIKey)
		billingService      = billing.NewSubscriptionService(stripeGateway, planRepo, subscriptionRepo, profileRepo)
		webhookProcessor    = billing.NewWebhookProcessor(config.Stripe.WebhookSecret, webhookEventStore, billingService, notificationService)
		admissionService    = waitinglist.NewAdmissionService(db, applicantRepo, reasonRepo, userService, notificationService, mailer)
		teamService         = moderation.NewTeamService(teamRepo, membershipRepo, invitationRepo, modProfileRepo, userService, mailer)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(config.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// the limiter keeps counters in process during local development so
	// debug runs do not pollute the shared redis
	var limiterStorage fiber.Storage = redisStorage
	if config.Debug {
		limiterStorage = memory.New()
	}

	hub := notifications.NewHub()
	hubCtx, stopHub := context.WithCancel(ctx.Context)
	defer stopHub()
	go hub.Run(hubCtx)
	go hub.Listen(hubCtx, rdb)

	setupAPIRoutes(
		router,
		limiterStorage,
		tokenService,
		userService,
		admissionService,
		billingService,
		webhookProcessor,
		notificationService,
		teamService,
		hub,
		mailer,
	)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, rdb, db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(config.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
