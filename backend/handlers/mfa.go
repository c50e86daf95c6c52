package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"task-app/backend/database"
	"task-app/backend/models"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "TaskApp"

// totpSkew is the accepted clock drift in 30s time steps on either side.
const totpSkew = 2

// GenerateTwoFASecret creates a new TOTP key for the given account name
func GenerateTwoFASecret(username string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: username,
	})
}

// ValidateTwoFACode checks the code against the secret with the standard
// 30s period and a tolerance of totpSkew steps either side.
func ValidateTwoFACode(secret, code string) bool {
	return validateTwoFACodeAt(secret, code, time.Now())
}

func validateTwoFACodeAt(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// generateQRCode renders the provisioning URI as a base64 PNG data URI
func generateQRCode(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type confirmTwoFARequest struct {
	Secret string `json:"secret"`
	Token  string `json:"token"`
}

type verifyTwoFARequest struct {
	Token string `json:"token"`
}

// SetupTwoFA generates a fresh secret and QR code for the logged-in user.
// Nothing is persisted until the code is confirmed, so an abandoned setup
// leaves no trace.
func SetupTwoFA(w http.ResponseWriter, r *http.Request) {
	user := GetCurrentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	key, err := GenerateTwoFASecret(user.Username)
	if err != nil {
		slog.Error("failed to generate 2FA secret", "source", "mfa", "user_id", user.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to set up 2FA")
		return
	}

	qrCode, err := generateQRCode(key)
	if err != nil {
		slog.Error("failed to generate QR code", "source", "mfa", "user_id", user.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to set up 2FA")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"secret":  key.Secret(),
		"qrCode":  qrCode,
	})
}

// ConfirmTwoFA verifies the submitted code against the submitted secret and,
// on success, enables 2FA for the current user by persisting both fields.
func ConfirmTwoFA(w http.ResponseWriter, r *http.Request) {
	user := GetCurrentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req confirmTwoFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "secret and token are required")
		return
	}

	if !ValidateTwoFACode(req.Secret, req.Token) {
		slog.Warn("2FA confirm failed: invalid code", "source", "mfa", "user_id", user.ID)
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	user.TwoFAEnabled = true
	user.TwoFASecret = req.Secret
	if err := database.DB.Save(user).Error; err != nil {
		slog.Error("failed to enable 2FA", "source", "mfa", "user_id", user.ID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to enable 2FA")
		return
	}

	slog.Info("2FA enabled", "source", "mfa", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "2FA enabled"})
}

// VerifyTwoFA is the second step of login: it checks the code against the
// pending user's stored secret and promotes the session on success.
func VerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, sessionName)

	pendingID, ok := session.Values["user_id_pending_2fa"].(uint)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no pending login")
		return
	}

	var user models.User
	if err := database.DB.First(&user, pendingID).Error; err != nil {
		writeError(w, http.StatusUnauthorized, "no pending login")
		return
	}

	var req verifyTwoFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Failure keeps the pending marker so the caller may retry.
	if !ValidateTwoFACode(user.TwoFASecret, req.Token) {
		slog.Warn("2FA verification failed: invalid code", "source", "mfa", "user_id", user.ID)
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	// Promote the session: clear the pending marker and set the full
	// identity in the same save.
	delete(session.Values, "user_id_pending_2fa")
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	if err := session.Save(r, w); err != nil {
		slog.Error("2FA verification failed: session save", "source", "mfa", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	slog.Info("2FA verification successful", "source", "mfa", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
