package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/phonegate/phonegate/internal/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(h *AuthHandlers, authMiddleware *middleware.AuthMiddleware, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/request-code", h.RequestCode).Methods("POST", "OPTIONS")
	auth.HandleFunc("/verify-code", h.VerifyCode).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/me", h.Me).Methods("GET")

	return router
}
