package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sweetshop/apiserver/internal/services"
)

const reportDateLayout = "2006-01-02"

// AdminHandler serves dashboard statistics and sales reports.
type AdminHandler struct {
	purchaseService *services.PurchaseService
	log             *slog.Logger
}

func NewAdminHandler(purchaseService *services.PurchaseService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{purchaseService: purchaseService, log: log}
}

// AdminRouter registers admin routes behind token and admin checks.
func AdminRouter(r chi.Router, purchaseService *services.PurchaseService, authenticator Authenticator, log *slog.Logger) {
	handler := NewAdminHandler(purchaseService, log)

	r.Use(RequireAuth(authenticator), RequireAdmin)
	r.Get("/stats", handler.Stats)
	r.Get("/sales", handler.Sales)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.purchaseService.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Sales reports purchases between startDate and endDate, both inclusive
// calendar days in UTC.
func (h *AdminHandler) Sales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, err := parseReportDate(query.Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	to, err := parseReportDate(query.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}

	report, err := h.purchaseService.SalesReport(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to build sales report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseReportDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(reportDateLayout, value, time.UTC)
}
