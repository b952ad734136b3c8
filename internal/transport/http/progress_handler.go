package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/domain"
	"quiz-proctor-service/internal/identity"
)

type progressResponse struct {
	UserID          string   `json:"userId"`
	CompletedTopics []string `json:"completedTopics"`
}

// ProgressHandler serves the topics the authenticated user has completed.
type ProgressHandler struct {
	service *app.SessionService
}

func NewProgressHandler(service *app.SessionService) *ProgressHandler {
	return &ProgressHandler{service: service}
}

func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity.UserFromContext(r.Context())
	topics, err := h.service.CompletedTopics(r.Context(), userID)
	if errors.Is(err, domain.ErrUnauthenticated) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("progress for %s: %v", userID, err)
		http.Error(w, "failed to load progress", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(progressResponse{UserID: userID, CompletedTopics: topics})
}
