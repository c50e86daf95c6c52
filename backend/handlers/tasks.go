package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"task-app/backend/database"
	"task-app/backend/models"

	"gorm.io/gorm"
)

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func taskIDFromPath(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// ListTasks returns the session user's tasks, newest-created first.
func ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tasks := []models.Task{}
	err := database.DB.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&tasks).Error
	if err != nil {
		slog.Error("failed to list tasks", "source", "tasks", "user_id", userID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	task := models.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      "pending",
	}
	if err := database.DB.Create(&task).Error; err != nil {
		slog.Error("failed to create task", "source", "tasks", "user_id", userID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	slog.Info("task created", "source", "tasks", "user_id", userID, "task_id", task.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// UpdateTask applies a partial update to a task owned by the session user.
// Omitted fields keep their stored values. A task that does not exist and a
// task owned by someone else are indistinguishable (404 either way).
func UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var task models.Task
	err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		slog.Error("failed to load task", "source", "tasks", "user_id", userID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	if req.Title != "" {
		task.Title = req.Title
	}
	if req.Description != "" {
		task.Description = req.Description
	}
	if req.Status != "" {
		task.Status = req.Status
	}

	// The mutation is re-scoped by owner, so a concurrent delete between the
	// load and this statement degrades to zero rows, not a foreign write.
	res := database.DB.Model(&models.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{
			"title":       task.Title,
			"description": task.Description,
			"status":      task.Status,
		})
	if res.Error != nil {
		slog.Error("failed to update task", "source", "tasks", "user_id", userID, "error", res.Error.Error())
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	// Reload to pick up the refreshed updated_at.
	if err := database.DB.First(&task, id).Error; err == nil {
		slog.Info("task updated", "source", "tasks", "user_id", userID, "task_id", task.ID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

func DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := taskIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	res := database.DB.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Task{})
	if res.Error != nil {
		slog.Error("failed to delete task", "source", "tasks", "user_id", userID, "error", res.Error.Error())
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	slog.Info("task deleted", "source", "tasks", "user_id", userID, "task_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
