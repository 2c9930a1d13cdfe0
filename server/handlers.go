package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"fermata/config"
	"fermata/core/auth"
	"fermata/core/moderation"
	"fermata/core/upload"
	"fermata/logger"

	"github.com/google/uuid"
)

// APIHandler handles all API requests.
type APIHandler struct {
	queue   *moderation.Queue
	uploads *upload.Manager
	cfg     *config.Config

	tokenMu    sync.Mutex
	undoTokens map[string]*moderation.UndoToken
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(queue *moderation.Queue, uploads *upload.Manager, cfg *config.Config) *APIHandler {
	return &APIHandler{
		queue:      queue,
		uploads:    uploads,
		cfg:        cfg,
		undoTokens: make(map[string]*moderation.UndoToken),
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("Failed to encode response", logger.ErrorField(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// registerUndo stores an undo token under a fresh id so HTTP clients can
// invoke it later. Inactive tokens are pruned on the way.
func (h *APIHandler) registerUndo(token *moderation.UndoToken) string {
	h.tokenMu.Lock()
	defer h.tokenMu.Unlock()

	for id, t := range h.undoTokens {
		if !t.Active() {
			delete(h.undoTokens, id)
		}
	}

	id := uuid.NewString()
	h.undoTokens[id] = token
	return id
}

func (h *APIHandler) lookupUndo(id string) *moderation.UndoToken {
	h.tokenMu.Lock()
	defer h.tokenMu.Unlock()
	return h.undoTokens[id]
}

// AuthMiddleware checks for a valid JWT token.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := bearerClaims(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// AdminMiddleware checks for a valid JWT token carrying the admin claim.
// The moderation endpoints sit behind it.
func (h *APIHandler) AdminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := bearerClaims(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if !claims.Admin {
			respondError(w, http.StatusForbidden, "admin access required")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

type ctxKey string

const ctxKeyUserID ctxKey = "userID"

func bearerClaims(r *http.Request) (*auth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errAuthHeaderMissing
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errAuthHeaderFormat
	}

	claims, err := auth.ParseToken(parts[1])
	if err != nil {
		return nil, errInvalidToken
	}
	return claims, nil
}

var (
	errAuthHeaderMissing = &authError{"Authorization header is required"}
	errAuthHeaderFormat  = &authError{"invalid authorization header format"}
	errInvalidToken      = &authError{"invalid token"}
)

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

// requestContext bounds a handler's repository work.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 30*time.Second)
}
