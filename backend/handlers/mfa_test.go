package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-app/backend/database"
	"task-app/backend/models"

	"github.com/pquerna/otp/totp"
)

func TestGenerateTwoFASecret_ReturnsValidKey(t *testing.T) {
	key, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatalf("GenerateTwoFASecret failed: %v", err)
	}
	if key.Secret() == "" {
		t.Error("Generated secret should not be empty")
	}
	if key.Issuer() != "TaskApp" {
		t.Errorf("Expected issuer 'TaskApp', got %q", key.Issuer())
	}
	if key.AccountName() != "alice" {
		t.Errorf("Expected account 'alice', got %q", key.AccountName())
	}
}

func TestGenerateTwoFASecret_FreshEachTime(t *testing.T) {
	a, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.Secret() == b.Secret() {
		t.Error("Each setup should generate a fresh secret")
	}
}

// Test that codes within ±2 time steps are accepted
func TestValidateTwoFACode_WithinWindow(t *testing.T) {
	key, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	// 30s steps; 90s is a step difference of exactly 3 regardless of phase
	for _, offset := range []time.Duration{0, -30 * time.Second, 30 * time.Second, -60 * time.Second, 60 * time.Second} {
		code, err := totp.GenerateCode(key.Secret(), now.Add(offset))
		if err != nil {
			t.Fatal(err)
		}
		if !validateTwoFACodeAt(key.Secret(), code, now) {
			t.Errorf("Code generated at offset %v should be accepted", offset)
		}
	}
}

// Test that codes outside ±2 time steps are rejected
func TestValidateTwoFACode_OutsideWindow(t *testing.T) {
	key, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second, -150 * time.Second, 150 * time.Second} {
		code, err := totp.GenerateCode(key.Secret(), now.Add(offset))
		if err != nil {
			t.Fatal(err)
		}
		if validateTwoFACodeAt(key.Secret(), code, now) {
			t.Errorf("Code generated at offset %v should be rejected", offset)
		}
	}
}

func TestValidateTwoFACode_Garbage(t *testing.T) {
	key, err := GenerateTwoFASecret("alice")
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"", "abc", "000000", "12345678"} {
		if ValidateTwoFACode(key.Secret(), code) {
			t.Errorf("Code %q should be rejected", code)
		}
	}
}

func TestSetupTwoFA_RequiresSession(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)

	rr := httptest.NewRecorder()
	SetupTwoFA(rr, jsonRequest(t, "POST", "/api/auth/setup-2fa", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", rr.Code)
	}
}

// Test that setup returns a secret and QR code but persists nothing
func TestSetupTwoFA_ReturnsSecretWithoutPersisting(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	user := createTestUser(t, "alice", "a@x.com", "secret1")

	req := jsonRequest(t, "POST", "/api/auth/setup-2fa", nil)
	for _, c := range sessionCookies(t, map[string]any{"user_id": user.ID, "username": user.Username}) {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	SetupTwoFA(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	body := decodeBody(t, rr)
	secret, _ := body["secret"].(string)
	qrCode, _ := body["qrCode"].(string)
	if secret == "" {
		t.Error("Response should include the raw secret")
	}
	if len(qrCode) < len("data:image/png;base64,") || qrCode[:22] != "data:image/png;base64," {
		t.Errorf("Response should include a PNG data URI, got %.40q", qrCode)
	}

	// Abandoned setup leaves no trace
	var stored models.User
	database.DB.First(&stored, user.ID)
	if stored.TwoFAEnabled || stored.TwoFASecret != "" {
		t.Error("Setup must not persist the secret before confirmation")
	}
}

func TestConfirmTwoFA_RequiresSession(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)

	rr := httptest.NewRecorder()
	ConfirmTwoFA(rr, jsonRequest(t, "POST", "/api/auth/confirm-2fa", map[string]string{
		"secret": "whatever", "token": "123456",
	}))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", rr.Code)
	}
}

func TestConfirmTwoFA_InvalidCode(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	user := createTestUser(t, "alice", "a@x.com", "secret1")
	key, _ := GenerateTwoFASecret("alice")

	req := jsonRequest(t, "POST", "/api/auth/confirm-2fa", map[string]string{
		"secret": key.Secret(), "token": "000000",
	})
	for _, c := range sessionCookies(t, map[string]any{"user_id": user.ID, "username": user.Username}) {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	ConfirmTwoFA(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid code, got %d", rr.Code)
	}

	var stored models.User
	database.DB.First(&stored, user.ID)
	if stored.TwoFAEnabled {
		t.Error("2FA must stay disabled after a failed confirmation")
	}
}

// Test that a valid code persists the secret and the enabled flag together
func TestConfirmTwoFA_ValidCode_Enables(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	user := createTestUser(t, "alice", "a@x.com", "secret1")
	key, _ := GenerateTwoFASecret("alice")
	code, _ := totp.GenerateCode(key.Secret(), time.Now())

	req := jsonRequest(t, "POST", "/api/auth/confirm-2fa", map[string]string{
		"secret": key.Secret(), "token": code,
	})
	for _, c := range sessionCookies(t, map[string]any{"user_id": user.ID, "username": user.Username}) {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	ConfirmTwoFA(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	var stored models.User
	database.DB.First(&stored, user.ID)
	if !stored.TwoFAEnabled {
		t.Error("TwoFAEnabled should be true after confirmation")
	}
	if stored.TwoFASecret != key.Secret() {
		t.Error("TwoFASecret should be persisted on confirmation")
	}
}

// Test that login with 2FA enabled yields a pending session, not access
func TestLogin_WithTwoFA_SetsPendingSession(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	key, _ := GenerateTwoFASecret("alice")
	user := createTestUser(t, "alice", "a@x.com", "secret1")
	database.DB.Model(&user).Updates(map[string]any{"two_fa_enabled": true, "two_fa_secret": key.Secret()})

	rr := httptest.NewRecorder()
	Login(rr, jsonRequest(t, "POST", "/api/auth/login", map[string]string{
		"username": "alice", "password": "secret1",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["requires2FA"] != true {
		t.Error("Expected requires2FA: true")
	}

	// The pending cookie must not authenticate task requests
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	if _, ok := CurrentUserID(req); ok {
		t.Error("Pending session must not count as authenticated")
	}
}

func TestVerifyTwoFA_NoPendingSession(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)

	rr := httptest.NewRecorder()
	VerifyTwoFA(rr, jsonRequest(t, "POST", "/api/auth/verify-2fa", map[string]string{"token": "123456"}))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without pending session, got %d", rr.Code)
	}
}

// Test that a failed verification keeps the pending session so the caller
// may retry, and that a later valid code still succeeds
func TestVerifyTwoFA_InvalidCode_RetainsPending(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	key, _ := GenerateTwoFASecret("alice")
	user := createTestUser(t, "alice", "a@x.com", "secret1")
	database.DB.Model(&user).Updates(map[string]any{"two_fa_enabled": true, "two_fa_secret": key.Secret()})

	cookies := sessionCookies(t, map[string]any{"user_id_pending_2fa": user.ID})

	req := jsonRequest(t, "POST", "/api/auth/verify-2fa", map[string]string{"token": "000000"})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	VerifyTwoFA(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid code, got %d", rr.Code)
	}

	// Retry with a valid code on the same pending cookie
	code, _ := totp.GenerateCode(key.Secret(), time.Now())
	req = jsonRequest(t, "POST", "/api/auth/verify-2fa", map[string]string{"token": code})
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	VerifyTwoFA(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Retry with valid code should succeed, got %d (%s)", rr.Code, rr.Body.String())
	}
}

// Test that a valid code promotes the pending session to a full one
func TestVerifyTwoFA_ValidCode_PromotesSession(t *testing.T) {
	setupTestDB(t)
	initTestSession(t)
	key, _ := GenerateTwoFASecret("alice")
	user := createTestUser(t, "alice", "a@x.com", "secret1")
	database.DB.Model(&user).Updates(map[string]any{"two_fa_enabled": true, "two_fa_secret": key.Secret()})

	code, _ := totp.GenerateCode(key.Secret(), time.Now())
	req := jsonRequest(t, "POST", "/api/auth/verify-2fa", map[string]string{"token": code})
	for _, c := range sessionCookies(t, map[string]any{"user_id_pending_2fa": user.ID}) {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	VerifyTwoFA(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}

	// The promoted cookie authenticates and the pending marker is gone
	promoted := httptest.NewRequest("GET", "/api/tasks", nil)
	for _, c := range rr.Result().Cookies() {
		promoted.AddCookie(c)
	}
	id, ok := CurrentUserID(promoted)
	if !ok || id != user.ID {
		t.Errorf("Promoted session should identify user %d, got %d (ok=%v)", user.ID, id, ok)
	}

	session, _ := Store.Get(promoted, sessionName)
	if _, pending := session.Values["user_id_pending_2fa"]; pending {
		t.Error("Pending marker should be cleared on promotion")
	}
}
