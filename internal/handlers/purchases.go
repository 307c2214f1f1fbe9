package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sweetshop/apiserver/internal/services"
)

// PurchaseHandler exposes the caller's purchase history.
type PurchaseHandler struct {
	purchaseService *services.PurchaseService
	authService     *services.AuthService
	log             *slog.Logger
}

func NewPurchaseHandler(purchaseService *services.PurchaseService, authService *services.AuthService, log *slog.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		authService:     authService,
		log:             log,
	}
}

// PurchaseRouter registers purchase routes. Every route requires a token.
func PurchaseRouter(r chi.Router, purchaseService *services.PurchaseService, authService *services.AuthService, log *slog.Logger) {
	handler := NewPurchaseHandler(purchaseService, authService, log)

	r.Use(RequireAuth(authService))
	r.Get("/history", handler.History)
	r.Get("/{id}", handler.GetPurchase)
}

func (h *PurchaseHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	purchases, err := h.purchaseService.History(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list purchases")
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

func (h *PurchaseHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	claims, _ := ClaimsFromContext(r.Context())

	purchase, err := h.purchaseService.Get(r.Context(), id, userID, claims.IsAdmin())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch purchase")
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *PurchaseHandler) callerID(w http.ResponseWriter, r *http.Request) (int, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	userID, err := h.authService.ResolveUserID(r.Context(), claims)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to resolve user")
		return 0, false
	}
	return userID, true
}
