package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"task-app/backend/config"
	"task-app/backend/database"
	"task-app/backend/handlers"
	"task-app/backend/logger"
	"task-app/backend/middleware"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// Initialize structured logging
	logger.Setup()

	// Initialize session store with configured secret and timeout
	if err := handlers.InitSession(); err != nil {
		log.Fatal("Failed to init session:", err)
	}

	if err := database.Init(); err != nil {
		log.Fatal("Failed to init database:", err)
	}

	slog.Info("server starting", "source", "main", "listen", config.C.Listen)

	mux := http.NewServeMux()

	// Health check (unauthenticated, for load balancers)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/auth/register", handlers.Register)
	mux.HandleFunc("POST /api/auth/login", handlers.Login)
	mux.HandleFunc("POST /api/auth/setup-2fa", handlers.SetupTwoFA)
	mux.HandleFunc("POST /api/auth/confirm-2fa", handlers.ConfirmTwoFA)
	mux.HandleFunc("POST /api/auth/verify-2fa", handlers.VerifyTwoFA)
	mux.HandleFunc("POST /api/auth/logout", handlers.Logout)

	// Task routes (owner-scoped, require a full session)
	mux.HandleFunc("GET /api/tasks", middleware.RequireAuth(handlers.ListTasks))
	mux.HandleFunc("POST /api/tasks", middleware.RequireAuth(handlers.CreateTask))
	mux.HandleFunc("PUT /api/tasks/{id}", middleware.RequireAuth(handlers.UpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", middleware.RequireAuth(handlers.DeleteTask))

	// Wrap all routes with security headers
	var handler http.Handler = middleware.SecurityHeaders(mux)
	if config.C.CSRFEnabled {
		csrf := middleware.NewCSRFProtection(config.C.Session.Secret, config.C.TLS.Enabled)
		handler = csrf.Protect(handler)
	}

	fmt.Printf("Server running at %s\n", config.C.Listen)
	if config.C.TLS.Enabled {
		slog.Info("starting server with TLS", "source", "main")
		log.Fatal(http.ListenAndServeTLS(config.C.Listen, config.C.TLS.Cert, config.C.TLS.Key, handler))
	} else {
		log.Fatal(http.ListenAndServe(config.C.Listen, handler))
	}
}
