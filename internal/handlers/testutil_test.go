package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/internal/database"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

const testCookieName = "userdesk_session"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	auth     *services.AuthService
	sessions *services.SessionService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	cfg := config.Load()
	cfg.Session.CookieName = testCookieName
	cfg.Session.TTL = time.Hour

	mailer := services.NewMailer(config.SMTPConfig{}) // disabled, no-op
	accessService := services.NewAccessService()
	sessionService := services.NewSessionService(db, cfg.Session.TTL)
	authService := services.NewAuthService(db, mailer, cfg.Server.BaseURL)
	ssoService := services.NewSSOService(db)
	auditService := services.NewAuditService(db)

	authMiddleware := middleware.NewAuthMiddleware(db, sessionService, cfg.Session)

	authHandler := NewAuthHandler(db, authService, sessionService, authMiddleware)
	usersHandler := NewUsersHandler(db, accessService, authService, sessionService, auditService)
	profileHandler := NewProfileHandler(db, ssoService)
	ssoHandler := NewSSOHandler(db, cfg, sessionService, authMiddleware)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(authMiddleware.LoadViewer)

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

	return &testEnv{app: app, db: db, auth: authService, sessions: sessionService}
}

// createTestUser inserts a verified, active user with its profile and an
// open session. The returned token goes straight into the session cookie.
func createTestUser(t *testing.T, env *testEnv, name, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing test password: %v", err)
	}

	user := models.User{
		Name:          name,
		Email:         email,
		EmailVerified: true,
		Active:        true,
		Role:          role,
		PasswordHash:  hash,
	}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	if err := env.db.Create(&models.Profile{UserID: user.ID, Name: user.Name}).Error; err != nil {
		t.Fatalf("failed creating test profile: %v", err)
	}

	token, _, err := env.sessions.Create(context.Background(), &user, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("failed creating test session: %v", err)
	}

	return &user, token
}

func sessionHeaders(token string) map[string]string {
	return map[string]string{"Cookie": testCookieName + "=" + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func assertFieldError(t *testing.T, body map[string]any, field string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["field"].(string); got != field {
		t.Fatalf("expected field error on %q, got %q (error=%v)", field, got, body["error"])
	}
}

// extractSessionCookie pulls the raw session token out of Set-Cookie.
func extractSessionCookie(t *testing.T, resp *http.Response) string {
	t.Helper()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == testCookieName {
			return cookie.Value
		}
	}
	t.Fatalf("expected %s cookie in response, headers=%v", testCookieName, resp.Header.Values("Set-Cookie"))
	return ""
}

// plantVerificationToken inserts a token row directly, standing in for the
// link the mailer would have delivered.
func plantVerificationToken(t *testing.T, env *testEnv, identifier string, purpose models.TokenPurpose, expiresAt time.Time) string {
	t.Helper()

	raw, err := utils.GenerateOpaqueToken()
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}

	record := models.VerificationToken{
		Identifier: identifier,
		TokenHash:  utils.HashToken(raw),
		Purpose:    purpose,
		ExpiresAt:  expiresAt,
	}
	if err := env.db.Create(&record).Error; err != nil {
		t.Fatalf("failed creating verification token: %v", err)
	}

	return raw
}
