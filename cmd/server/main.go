package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/internal/database"
	"github.com/userdesk/backend/internal/handlers"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB, cfg.Admin)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	mailer := services.NewMailer(cfg.SMTP)
	accessService := services.NewAccessService()
	sessionService := services.NewSessionService(db, cfg.Session.TTL)
	authService := services.NewAuthService(db, mailer, cfg.Server.BaseURL)
	ssoService := services.NewSSOService(db)
	auditService := services.NewAuditService(db)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService, cfg.Session)

	authHandler := handlers.NewAuthHandler(db, authService, sessionService, authMiddleware)
	usersHandler := handlers.NewUsersHandler(db, accessService, authService, sessionService, auditService)
	profileHandler := handlers.NewProfileHandler(db, ssoService)
	ssoHandler := handlers.NewSSOHandler(db, cfg, sessionService, authMiddleware)

	app := fiber.New(fiber.Config{AppName: "userdesk"})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(authMiddleware.LoadViewer)
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/logout", authHandler.Logout)
	authRoutes.Post("/verify-email", authHandler.VerifyEmail)
	authRoutes.Post("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Post("/reset-password", authHandler.ResetPassword)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Get("/sso/:provider", ssoHandler.GetLoginRedirect)
	authRoutes.Get("/sso/:provider/callback", ssoHandler.HandleOAuthCallback)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, authMiddleware.RequireActive)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Patch("/:id/name", usersHandler.Rename)
	userRoutes.Patch("/:id/email", usersHandler.ChangeEmail)
	userRoutes.Patch("/:id/email-public", usersHandler.ChangePublicEmail)
	userRoutes.Patch("/:id/active", usersHandler.SetActive)
	userRoutes.Patch("/:id/role", usersHandler.SetRole)
	userRoutes.Delete("/:id", usersHandler.Delete)

	profileRoutes := api.Group("/profile", authMiddleware.RequireAuth, authMiddleware.RequireActive)
	profileRoutes.Put("/", profileHandler.Update)
	profileRoutes.Get("/linked-accounts", profileHandler.LinkedAccounts)

	logger.Info("server_starting", map[string]interface{}{"port": cfg.Server.Port})
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
