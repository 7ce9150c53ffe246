package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/pkg/utils"
)

func TestRegisterCreatesUserWithProfile(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]string{
		"name":            "Alice",
		"email":           "Alice@Example.com",
		"password":        "correct-horse",
		"passwordConfirm": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("expected success envelope, got %+v", body)
	}
	flash, _ := body["flash"].(map[string]any)
	if kind, _ := flash["kind"].(string); kind != "success" {
		t.Fatalf("expected success flash, got %+v", body["flash"])
	}

	var user models.User
	if err := env.db.First(&user, "email = ?", "alice@example.com").Error; err != nil {
		t.Fatalf("registered user not found: %v", err)
	}
	if user.Name != "alice" {
		t.Fatalf("expected lowercased name %q, got %q", "alice", user.Name)
	}
	if user.EmailVerified {
		t.Fatal("fresh account must not be email-verified")
	}
	if !user.Active {
		t.Fatal("fresh account must be active")
	}
	if user.Role != models.UserRoleUser {
		t.Fatalf("expected default role USER, got %q", user.Role)
	}

	var count int64
	if err := env.db.Model(&models.Profile{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting profiles: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one profile for new user, got %d", count)
	}

	var profile models.Profile
	if err := env.db.First(&profile, "user_id = ?", user.ID).Error; err != nil {
		t.Fatalf("profile not found: %v", err)
	}
	if profile.Name != "alice" {
		t.Fatalf("expected profile name mirror %q, got %q", "alice", profile.Name)
	}
}

func TestRegisterRejectsTakenNameAndEmail(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]string{
		"name":            "alice",
		"email":           "other@example.com",
		"password":        "correct-horse",
		"passwordConfirm": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusConflict)
	assertFieldError(t, decodeJSONMap(t, resp), "name")

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]string{
		"name":            "bob",
		"email":           "alice@example.com",
		"password":        "correct-horse",
		"passwordConfirm": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusConflict)
	assertFieldError(t, decodeJSONMap(t, resp), "email")

	var count int64
	if err := env.db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed counting users: %v", err)
	}
	if count != 1 {
		t.Fatalf("conflicting registrations must not create users, got %d rows", count)
	}
}

func TestRegisterRejectsPasswordMismatch(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/register", map[string]string{
		"name":            "alice",
		"email":           "alice@example.com",
		"password":        "correct-horse",
		"passwordConfirm": "wrong-horse",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertFieldError(t, decodeJSONMap(t, resp), "passwordConfirm")
}

func TestLoginGates(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	// wrong password
	resp := performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-horse",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "invalid credentials")

	// unknown account
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	// unverified email
	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("email_verified", false).Error; err != nil {
		t.Fatalf("failed flipping email_verified: %v", err)
	}
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "email address is not verified")

	// deactivated account
	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"email_verified": true, "active": false}).Error; err != nil {
		t.Fatalf("failed deactivating user: %v", err)
	}
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "account is deactivated")
}

func TestLoginStartsSession(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "ALICE@example.com",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)
	if data == nil || data["token"] == "" {
		t.Fatalf("expected bearer token in login response, got %+v", body)
	}

	cookieToken := extractSessionCookie(t, resp)

	var session models.Session
	if err := env.db.First(&session, "token_hash = ?", utils.HashToken(cookieToken)).Error; err != nil {
		t.Fatalf("session row not found for cookie token: %v", err)
	}
	if session.UserID != user.ID {
		t.Fatalf("session belongs to %s, expected %s", session.UserID, user.ID)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Fatal("fresh session must not be expired")
	}

	// cookie authenticates follow-up requests
	resp = performRequest(t, env.app, "GET", "/api/auth/me", nil, sessionHeaders(cookieToken))
	assertStatus(t, resp, http.StatusOK)
	me := decodeJSONMap(t, resp)
	meData, _ := me["data"].(map[string]any)
	meUser, _ := meData["user"].(map[string]any)
	if got, _ := meUser["email"].(string); got != "alice@example.com" {
		t.Fatalf("expected me endpoint to return alice, got %q", got)
	}
	if _, ok := meData["profile"]; !ok {
		t.Fatalf("expected profile alongside user, got %+v", meData)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/logout", nil, sessionHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var count int64
	if err := env.db.Model(&models.Session{}).
		Where("token_hash = ?", utils.HashToken(token)).Count(&count).Error; err != nil {
		t.Fatalf("failed counting sessions: %v", err)
	}
	if count != 0 {
		t.Fatal("logout must delete the session row")
	}

	resp = performRequest(t, env.app, "GET", "/api/auth/me", nil, sessionHeaders(token))
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestRequireAuthRedirectsAnonymous(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRequest(t, env.app, "GET", "/api/users/", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	body := decodeJSONMap(t, resp)
	if redirect, _ := body["redirect"].(string); redirect != "/sign-in" {
		t.Fatalf("expected redirect to /sign-in, got %+v", body)
	}
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)
	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("email_verified", false).Error; err != nil {
		t.Fatalf("failed resetting email_verified: %v", err)
	}

	raw := plantVerificationToken(t, env, user.Email, models.TokenPurposeEmailVerify, time.Now().Add(time.Hour))

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/verify-email", map[string]string{"token": raw}, nil)
	assertStatus(t, resp, http.StatusOK)

	var fresh models.User
	if err := env.db.First(&fresh, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}
	if !fresh.EmailVerified {
		t.Fatal("expected email_verified after verification")
	}

	// single use
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/verify-email", map[string]string{"token": raw}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestVerifyEmailRejectsExpiredToken(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	raw := plantVerificationToken(t, env, user.Email, models.TokenPurposeEmailVerify, time.Now().Add(-time.Minute))

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/verify-email", map[string]string{"token": raw}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "verification link is invalid or expired")
}

func TestForgotPasswordIsUniform(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	known := performJSONRequest(t, env.app, "POST", "/api/auth/forgot-password",
		map[string]string{"email": "alice@example.com"}, nil)
	unknown := performJSONRequest(t, env.app, "POST", "/api/auth/forgot-password",
		map[string]string{"email": "nobody@example.com"}, nil)

	assertStatus(t, known, http.StatusOK)
	assertStatus(t, unknown, http.StatusOK)

	knownFlash, _ := decodeJSONMap(t, known)["flash"].(map[string]any)
	unknownFlash, _ := decodeJSONMap(t, unknown)["flash"].(map[string]any)
	if knownFlash["text"] != unknownFlash["text"] {
		t.Fatalf("responses must not reveal whether the address exists: %v vs %v",
			knownFlash["text"], unknownFlash["text"])
	}

	// the token only exists for the real account
	var count int64
	if err := env.db.Model(&models.VerificationToken{}).
		Where("identifier = ? AND purpose = ?", "nobody@example.com", models.TokenPurposePasswordReset).
		Count(&count).Error; err != nil {
		t.Fatalf("failed counting tokens: %v", err)
	}
	if count != 0 {
		t.Fatal("no reset token may be issued for an unknown address")
	}
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	raw := plantVerificationToken(t, env, user.Email, models.TokenPurposePasswordReset, time.Now().Add(time.Hour))

	resp := performJSONRequest(t, env.app, "POST", "/api/auth/reset-password", map[string]string{
		"token":    raw,
		"password": "brand-new-horse",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	// old password out, new password in
	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "correct-horse",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "brand-new-horse",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	// existing session is gone
	resp = performRequest(t, env.app, "GET", "/api/auth/me", nil, sessionHeaders(token))
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env, "alice", "alice@example.com", "correct-horse", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, "PUT", "/api/auth/password", map[string]string{
		"oldPassword": "wrong-horse",
		"newPassword": "brand-new-horse",
	}, sessionHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
	assertFieldError(t, decodeJSONMap(t, resp), "oldPassword")

	resp = performJSONRequest(t, env.app, "PUT", "/api/auth/password", map[string]string{
		"oldPassword": "correct-horse",
		"newPassword": "brand-new-horse",
	}, sessionHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	// all sessions revoked after the change
	resp = performRequest(t, env.app, "GET", "/api/auth/me", nil, sessionHeaders(token))
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = performJSONRequest(t, env.app, "POST", "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "brand-new-horse",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
}
