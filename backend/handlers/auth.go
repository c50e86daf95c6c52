package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"task-app/backend/database"
	"task-app/backend/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "passwords do not match")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	var existing models.User
	err := database.DB.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error
	if err == nil {
		slog.Warn("registration failed: duplicate", "source", "auth", "username", req.Username)
		writeError(w, http.StatusBadRequest, "username or email already exists")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("registration failed: db error", "source", "auth", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("registration failed: hash error", "source", "auth", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := models.User{Username: req.Username, Email: req.Email, Password: string(hashed)}
	if err := database.DB.Create(&user).Error; err != nil {
		slog.Error("registration failed: db error", "source", "auth", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	slog.Info("user registered", "source", "auth", "user_id", user.ID, "username", user.Username)

	// Registration grants no session; the user still has to log in.
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "user registered"})
}

func Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// Same message whether the username is unknown or the password is wrong.
	var user models.User
	if err := database.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		slog.Warn("login failed: user not found", "source", "auth", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		slog.Warn("login failed: invalid password", "source", "auth", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	session, _ := Store.Get(r, sessionName)

	if user.TwoFAEnabled {
		// Password checked out but the second factor is outstanding. The
		// session carries only the pending marker until verify-2fa promotes it.
		delete(session.Values, "user_id")
		delete(session.Values, "username")
		session.Values["user_id_pending_2fa"] = user.ID
		if err := session.Save(r, w); err != nil {
			slog.Error("login failed: session save", "source", "auth", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		slog.Info("login pending 2fa", "source", "auth", "user_id", user.ID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "requires2FA": true})
		return
	}

	delete(session.Values, "user_id_pending_2fa")
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	if err := session.Save(r, w); err != nil {
		slog.Error("login failed: session save", "source", "auth", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	slog.Info("user logged in", "source", "auth", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requires2FA": false})
}

func Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, sessionName)
	userID, _ := session.Values["user_id"].(uint)

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		slog.Error("logout failed: session save", "source", "auth", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	slog.Info("user logged out", "source", "auth", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetCurrentUser is a variable to allow mocking in tests
var GetCurrentUser = func(r *http.Request) *models.User {
	id, ok := CurrentUserID(r)
	if !ok {
		return nil
	}
	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return nil
	}
	return &user
}
