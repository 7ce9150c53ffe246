package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Session SessionConfig
	JWT     JWTConfig
	SMTP    SMTPConfig
	SSO     SSOConfig
	Admin   AdminSeedConfig
}

type ServerConfig struct {
	Port        string
	BaseURL     string
	FrontendURL string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type SessionConfig struct {
	CookieName   string
	TTL          time.Duration
	CookieSecure bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

type SSOConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
	OIDC   OIDCProviderConfig
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       string
}

type OIDCProviderConfig struct {
	OAuthProviderConfig
	IssuerURL string
}

// AdminSeedConfig bootstraps the first admin account on an empty database.
type AdminSeedConfig struct {
	Name     string
	Email    string
	Password string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "userdesk"),
			Password: getEnv("DB_PASSWORD", "userdesk_secret"),
			Name:     getEnv("DB_NAME", "userdesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Session: SessionConfig{
			CookieName:   getEnv("SESSION_COOKIE_NAME", "userdesk_session"),
			TTL:          getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "noreply@userdesk.local"),
			Enabled:  getEnvAsBool("SMTP_ENABLED", false),
		},
		SSO: SSOConfig{
			Google: OAuthProviderConfig{
				Enabled:      getEnvAsBool("SSO_GOOGLE_ENABLED", false),
				ClientID:     getEnv("SSO_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("SSO_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("SSO_GOOGLE_REDIRECT_URL", ""),
				Scopes:       getEnv("SSO_GOOGLE_SCOPES", "openid,profile,email"),
			},
			GitHub: OAuthProviderConfig{
				Enabled:      getEnvAsBool("SSO_GITHUB_ENABLED", false),
				ClientID:     getEnv("SSO_GITHUB_CLIENT_ID", ""),
				ClientSecret: getEnv("SSO_GITHUB_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("SSO_GITHUB_REDIRECT_URL", ""),
				Scopes:       getEnv("SSO_GITHUB_SCOPES", "read:user,user:email"),
			},
			OIDC: OIDCProviderConfig{
				OAuthProviderConfig: OAuthProviderConfig{
					Enabled:      getEnvAsBool("SSO_OIDC_ENABLED", false),
					ClientID:     getEnv("SSO_OIDC_CLIENT_ID", ""),
					ClientSecret: getEnv("SSO_OIDC_CLIENT_SECRET", ""),
					RedirectURL:  getEnv("SSO_OIDC_REDIRECT_URL", ""),
					Scopes:       getEnv("SSO_OIDC_SCOPES", "openid,profile,email"),
				},
				IssuerURL: getEnv("SSO_OIDC_ISSUER_URL", ""),
			},
		},
		Admin: AdminSeedConfig{
			Name:     getEnv("ADMIN_SEED_NAME", "admin"),
			Email:    getEnv("ADMIN_SEED_EMAIL", "admin@userdesk.local"),
			Password: getEnv("ADMIN_SEED_PASSWORD", "admin123"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
